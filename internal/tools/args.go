package tools

import (
	"encoding/json"

	"github.com/insurelens/insurelens-ai/internal/premium"
)

// Argument accessors. Schema validation has already established presence and
// type, but JSON decoding and Go callers deliver numbers differently
// (float64 from the wire, int from code), so each accessor normalizes.

func stringArg(args map[string]interface{}, key string) string {
	s, _ := args[key].(string)
	return s
}

func int64Arg(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	case json.Number:
		n, err := v.Int64()
		return n, err == nil
	default:
		return 0, false
	}
}

func intsArg(args map[string]interface{}, key string) []int {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]int, 0, len(raw))
	for _, item := range raw {
		switch v := item.(type) {
		case float64:
			out = append(out, int(v))
		case int:
			out = append(out, v)
		case int64:
			out = append(out, int(v))
		case json.Number:
			if n, err := v.Int64(); err == nil {
				out = append(out, int(n))
			}
		}
	}
	return out
}

func stringsArg(args map[string]interface{}, key string) []string {
	switch raw := args[key].(type) {
	case []string:
		return raw
	case []interface{}:
		out := make([]string, 0, len(raw))
		for _, item := range raw {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// membersFromAges converts an ages argument into rated members.
func membersFromAges(args map[string]interface{}, key string) []premium.Member {
	ages := intsArg(args, key)
	members := make([]premium.Member, 0, len(ages))
	for _, age := range ages {
		members = append(members, premium.Member{Age: age})
	}
	return members
}
