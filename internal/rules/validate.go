package rules

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	doublestar "github.com/bmatcuk/doublestar/v4"
	"github.com/go-playground/validator/v10"

	"github.com/cloakscan/cloakscan/internal/types"
)

// Default entropy parameters applied to entropy rules that do not set their own.
const (
	DefaultMinLength        = 16
	DefaultEntropyThreshold = 3.5
)

// EntropyDefaults overrides the defaults for entropy rules lacking explicit values.
type EntropyDefaults struct {
	MinLength int
	Threshold float64
}

func (e EntropyDefaults) withFallback() EntropyDefaults {
	if e.MinLength <= 0 {
		e.MinLength = DefaultMinLength
	}
	if e.Threshold <= 0 {
		e.Threshold = DefaultEntropyThreshold
	}
	return e
}

var reRuleID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func definitionValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("severity", func(fl validator.FieldLevel) bool {
			_, err := types.ParseSeverity(fl.Field().String())
			return err == nil
		})
		_ = validate.RegisterValidation("ruleid", func(fl validator.FieldLevel) bool {
			return reRuleID.MatchString(fl.Field().String())
		})
	})
	return validate
}

// Compile validates d and returns the compiled rule. source names where the
// definition came from and is kept on the rule for listing.
func Compile(d Definition, source string, defaults EntropyDefaults) (*Rule, error) {
	if err := definitionValidator().Struct(d); err != nil {
		return nil, describeValidation(err)
	}
	if strings.TrimSpace(d.Pattern) == "" {
		return nil, errors.New("missing required field pattern")
	}
	sev, _ := types.ParseSeverity(d.Severity)
	r := &Rule{
		ID:           d.ID,
		Category:     strings.ToLower(strings.TrimSpace(d.Category)),
		Description:  d.Description,
		Kind:         d.Kind,
		Pattern:      d.Pattern,
		Severity:     sev,
		Confidence:   *d.Confidence,
		Enabled:      d.Enabled == nil || *d.Enabled,
		Keywords:     lowerAll(d.Keywords),
		PathExcludes: d.PathExcludes,
		Source:       source,
	}

	switch d.Kind {
	case KindLiteral:
		r.literal = []byte(d.Pattern)
	case KindRegex, KindEntropy:
		re, err := regexp.Compile(d.Pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern: %w", err)
		}
		r.re = re
	}

	if d.Kind == KindEntropy {
		defaults = defaults.withFallback()
		r.MinLength = defaults.MinLength
		r.EntropyThreshold = defaults.Threshold
		if d.MinLength != nil {
			r.MinLength = *d.MinLength
		}
		if d.EntropyThreshold != nil {
			r.EntropyThreshold = *d.EntropyThreshold
		}
	}

	for _, a := range d.Allowlist {
		re, err := regexp.Compile(a)
		if err != nil {
			return nil, fmt.Errorf("invalid allowlist entry %q: %w", a, err)
		}
		r.allowlist = append(r.allowlist, re)
	}
	for _, g := range d.PathExcludes {
		if !doublestar.ValidatePattern(g) {
			return nil, fmt.Errorf("invalid path exclude glob %q", g)
		}
	}
	return r, nil
}

func describeValidation(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("missing required field %s", fe.Field()))
		case "gte", "lte", "gt":
			msgs = append(msgs, fmt.Sprintf("%s out of range (%s %s)", fe.Field(), fe.Tag(), fe.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("invalid %s (%s)", fe.Field(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func lowerAll(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToLower(s)
	}
	return out
}
