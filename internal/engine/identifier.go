package engine

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/withterm/term-sub003/internal/errs"
)

const (
	maxIdentifierLength = 128
	maxPatternLength    = 1024
)

// identifierPattern matches the accepted table-name grammar from spec §6:
// [A-Za-z_][A-Za-z0-9_]*, length 1-128.
var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// forbiddenIdentifierSubstrings are rejected case-sensitively as literal
// characters (quotes, statement terminators, comment markers, NUL/control
// bytes) per spec §6. Reserved verbs are checked separately, case-insensitively.
var forbiddenIdentifierSubstrings = []string{
	"'", "\"", ";", "\n", "\r", "\t", "\x00", "*", "/",
}

// reservedSQLVerbs are rejected case-insensitively anywhere in the identifier.
var reservedSQLVerbs = []string{
	"DROP", "DELETE", "INSERT", "UPDATE", "CREATE", "ALTER", "TRUNCATE",
	"UNION", "SELECT", "--", "/*", "*/", "#",
}

// ValidateTableName validates a table name against the identifier grammar and
// the security denylist (spec §6, §7 Security). Returns errs.ErrSecurity
// wrapped with the specific reason when rejected.
func ValidateTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: table name is empty or whitespace-only", errs.ErrSecurity)
	}

	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: table name exceeds %d characters", errs.ErrSecurity, maxIdentifierLength)
	}

	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("%w: table name %q does not match [A-Za-z_][A-Za-z0-9_]*", errs.ErrSecurity, name)
	}

	for _, bad := range forbiddenIdentifierSubstrings {
		if strings.Contains(name, bad) {
			return fmt.Errorf("%w: table name contains forbidden character", errs.ErrSecurity)
		}
	}

	upper := strings.ToUpper(name)
	for _, verb := range reservedSQLVerbs {
		if strings.Contains(upper, strings.ToUpper(verb)) {
			return fmt.Errorf("%w: table name contains reserved SQL verb %q", errs.ErrSecurity, verb)
		}
	}

	return nil
}

// EscapeIdentifier wraps a validated identifier in double quotes, the form
// used in generated SQL. Callers must call ValidateTableName first.
func EscapeIdentifier(name string) string {
	return `"` + name + `"`
}

// ValidateIdentifierLength bounds an arbitrary identifier (e.g. a column
// name) used inside constraint metadata. Length <= 128, no NUL bytes.
func ValidateIdentifierLength(name string) error {
	if len(name) > maxIdentifierLength {
		return fmt.Errorf("%w: identifier exceeds %d characters", errs.ErrSecurity, maxIdentifierLength)
	}

	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("%w: identifier contains NUL byte", errs.ErrSecurity)
	}

	return nil
}

// ValidatePatternLength bounds a regex pattern used by the Pattern constraint.
// Length <= 1024, no NUL bytes.
func ValidatePatternLength(pattern string) error {
	if len(pattern) > maxPatternLength {
		return fmt.Errorf("%w: pattern exceeds %d characters", errs.ErrSecurity, maxPatternLength)
	}

	if strings.ContainsRune(pattern, 0) {
		return fmt.Errorf("%w: pattern contains NUL byte", errs.ErrSecurity)
	}

	return nil
}

// forbiddenCustomSQLKeywords are rejected case-insensitively anywhere inside
// a CustomSQL predicate (spec §6).
var forbiddenCustomSQLKeywords = []string{
	"drop", "delete", "insert", "update", "create", "alter", "grant", "revoke",
	"exec", "execute", "union", "select", "--", "/*", "*/",
}

// ValidateCustomSQLPredicate rejects a user-supplied predicate expression
// that contains any forbidden keyword (case-insensitive) per spec §6. This
// is a compatibility floor, not a safety ceiling — see DESIGN.md Open
// Question on CustomSQL predicate safety (spec §9).
func ValidateCustomSQLPredicate(predicate string) error {
	if strings.TrimSpace(predicate) == "" {
		return fmt.Errorf("%w: predicate is empty", errs.ErrSecurity)
	}

	if err := ValidatePatternLength(predicate); err != nil {
		return err
	}

	lower := strings.ToLower(predicate)
	for _, kw := range forbiddenCustomSQLKeywords {
		if strings.Contains(lower, kw) {
			return fmt.Errorf("%w: predicate contains forbidden keyword %q", errs.ErrSecurity, kw)
		}
	}

	return nil
}
