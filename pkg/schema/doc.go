// Package schema provides machine-checkable parameter schemas for tool arguments.
//
// A schema is an ordered list of fields, each with a Type and a required flag.
// The same Object is used in two directions: it validates the argument map an
// oracle proposed, and it renders itself as a JSON Schema object so the oracle
// knows what to send.
//
//	params := schema.Object{Fields: []schema.Field{
//	    {Name: "reason", Type: schema.String(), Required: true},
//	    {Name: "missing_information", Type: schema.Slice(schema.String())},
//	}}
//
//	if err := params.Validate(args); err != nil {
//	    for _, e := range schema.ValidationErrors(err) {
//	        // ...
//	    }
//	}
//
// Enum, Minimum and Maximum on a Field are advertised in the JSON Schema but are
// not enforced by Validate. Callers that must coerce out-of-range values do so
// after validation.
//
// The package has no dependencies beyond the standard library.
package schema
