package manifest

import (
	"fmt"
	"strings"
)

// Action says how an environment block combines with the current value of its variable.
type Action string

const (
	ActionPrepend Action = "prepend"
	ActionAppend  Action = "append"
	ActionDefine  Action = "define"
)

// UnmarshalText accepts any casing ("Prepend", "APPEND").
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAction normalises s. An empty string selects the default, ActionAppend.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "append":
		return ActionAppend, nil
	case "prepend":
		return ActionPrepend, nil
	case "define":
		return ActionDefine, nil
	default:
		return "", fmt.Errorf("%w: unknown action %q (expected prepend, append, or define)", ErrInvalid, s)
	}
}

// Valid reports whether a is one of the known actions or unset.
func (a Action) Valid() bool {
	_, err := ParseAction(string(a))
	return err == nil
}

// Effective returns the action with the default applied.
func (a Action) Effective() Action {
	parsed, err := ParseAction(string(a))
	if err != nil {
		return a
	}
	return parsed
}

// Apply combines the current value base with value. An empty base never
// produces a dangling separator.
func (a Action) Apply(base, value, sep string) string {
	switch a.Effective() {
	case ActionDefine:
		return value
	case ActionPrepend:
		if base == "" {
			return value
		}
		return value + sep + base
	default:
		if base == "" {
			return value
		}
		return base + sep + value
	}
}
