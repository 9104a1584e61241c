package dispatch

import (
	"context"
	"fmt"
	"math"

	"github.com/aretw0/attest/pkg/domain"
	"github.com/mitchellh/mapstructure"
)

func decode(args map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return err
	}
	return dec.Decode(args)
}

// copyArgs records the call's arguments verbatim.
func copyArgs(args map[string]any) map[string]any {
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

func (d *Dispatcher) analyzeReply(ctx context.Context, req Request) (domain.ToolResult, error) {
	var in struct {
		FocusAreas []string `mapstructure:"focus_areas"`
	}
	if err := decode(req.Call.Args, &in); err != nil {
		return domain.ToolResult{}, &domain.ValidationError{Tool: domain.ToolAnalyzeReply, Err: err}
	}
	if d.analyzer == nil {
		return domain.ToolResult{}, fmt.Errorf("no reply analyzer configured")
	}

	analysis, err := d.analyzer.Analyze(ctx, req.Reply, req.Certificate)
	if err != nil {
		return domain.ToolResult{}, fmt.Errorf("reply analysis failed: %w", err)
	}

	out := map[string]any{
		"verification_status": string(analysis.Status),
		"confidence_score":    analysis.Confidence,
		"key_phrases":         append([]string{}, analysis.KeyPhrases...),
		"explanation":         analysis.Explanation,
	}
	if len(in.FocusAreas) > 0 {
		out["focus_areas"] = in.FocusAreas
	}
	return domain.ToolResult{Output: out, Payload: analysis}, nil
}

func requestClarification(_ context.Context, req Request) (domain.ToolResult, error) {
	var c domain.Clarification
	if err := decode(req.Call.Args, &c); err != nil {
		return domain.ToolResult{}, &domain.ValidationError{Tool: domain.ToolRequestClarification, Err: err}
	}
	out := copyArgs(req.Call.Args)
	out["clarification_requested"] = true
	return domain.ToolResult{Output: out, Payload: c}, nil
}

func escalateToHuman(_ context.Context, req Request) (domain.ToolResult, error) {
	var e domain.Escalation
	if err := decode(req.Call.Args, &e); err != nil {
		return domain.ToolResult{}, &domain.ValidationError{Tool: domain.ToolEscalateToHuman, Err: err}
	}
	out := copyArgs(req.Call.Args)
	out["escalated"] = true
	return domain.ToolResult{Output: out, Payload: e}, nil
}

func decideCompliance(_ context.Context, req Request) (domain.ToolResult, error) {
	var in struct {
		Status          string  `mapstructure:"status"`
		Confidence      float64 `mapstructure:"confidence_score"`
		Explanation     string  `mapstructure:"explanation"`
		EvidenceSummary string  `mapstructure:"evidence_summary"`
	}
	if err := decode(req.Call.Args, &in); err != nil {
		return domain.ToolResult{}, &domain.ValidationError{Tool: domain.ToolDecideCompliance, Err: err}
	}

	// Unknown statuses become INCONCLUSIVE: the loop cannot retry a terminal call.
	status, known := domain.ParseComplianceStatus(in.Status)
	v := domain.Verdict{
		Status:          status,
		Confidence:      clamp(in.Confidence),
		Explanation:     in.Explanation,
		EvidenceSummary: in.EvidenceSummary,
		Coerced:         !known,
	}

	out := map[string]any{
		"status":              string(v.Status),
		"verification_status": string(v.Status.Verification()),
		"confidence_score":    v.Confidence,
		"explanation":         v.Explanation,
	}
	if v.EvidenceSummary != "" {
		out["evidence_summary"] = v.EvidenceSummary
	}
	if v.Coerced {
		out["status_coerced"] = true
		out["requested_status"] = in.Status
	}
	return domain.ToolResult{Output: out, Payload: v}, nil
}

func clamp(f float64) float64 {
	switch {
	case f < 0 || math.IsNaN(f):
		return 0
	case f > 1:
		return 1
	}
	return f
}
