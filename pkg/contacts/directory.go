// Package contacts resolves an institution name to the office that answers
// verification requests.
package contacts

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Contact is an institution's verification office.
type Contact struct {
	Name                   string `json:"name" yaml:"name"`
	Email                  string `json:"email" yaml:"email"`
	Country                string `json:"country,omitempty" yaml:"country,omitempty"`
	VerificationDepartment string `json:"verification_department,omitempty" yaml:"verification_department,omitempty"`
}

type file struct {
	Universities map[string]Contact `json:"universities" yaml:"universities"`
}

// Directory is an immutable, case-insensitive contact index.
type Directory struct {
	byName map[string]Contact
	names  []string // sorted lowercase keys, for deterministic partial matching
}

// New indexes contacts by their Name.
func New(contacts ...Contact) *Directory {
	d := &Directory{byName: make(map[string]Contact, len(contacts))}
	for _, c := range contacts {
		key := normalize(c.Name)
		if key == "" {
			continue
		}
		if _, dup := d.byName[key]; !dup {
			d.names = append(d.names, key)
		}
		d.byName[key] = c
	}
	sort.Strings(d.names)
	return d
}

// Load reads a YAML or JSON file of the form
//
//	universities:
//	  University of Lagos:
//	    email: registrar@unilag.edu.ng
//	    country: Nigeria
//	    verification_department: Academic Records
//
// JSON is chosen by the .json extension; anything else parses as YAML.
func Load(path string) (*Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}

	var f file
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &f)
	} else {
		err = yaml.Unmarshal(data, &f)
	}
	if err != nil {
		return nil, fmt.Errorf("parse contacts %s: %w", path, err)
	}

	list := make([]Contact, 0, len(f.Universities))
	for name, c := range f.Universities {
		if c.Name == "" {
			c.Name = name
		}
		list = append(list, c)
	}
	return New(list...), nil
}

// Lookup finds the contact for name. An exact case-insensitive match wins;
// otherwise the first entry (in name order) where either name contains the
// other is returned.
func (d *Directory) Lookup(name string) (Contact, bool) {
	key := normalize(name)
	if key == "" || d == nil {
		return Contact{}, false
	}
	if c, ok := d.byName[key]; ok {
		return c, true
	}
	for _, candidate := range d.names {
		if strings.Contains(candidate, key) || strings.Contains(key, candidate) {
			return d.byName[candidate], true
		}
	}
	return Contact{}, false
}

// Len reports the number of institutions.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.names)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
