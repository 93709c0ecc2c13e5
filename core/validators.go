package core

import (
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	"github.com/go-playground/locales/es"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"
	es_translations "github.com/go-playground/validator/v10/translations/es"
)

const (
	LangEN      = "en"
	LangES      = "es"
	DefaultLang = LangEN
)

// Languages lists the supported locales.
var Languages = []string{LangEN, LangES}

// Text holds a message per locale.
type Text map[string]string

var (
	// custom validation tags & texts
	alphaNumUnderTag  = "alphanum_"
	alphaNumUnderText = Text{
		LangEN: "only alphanumeric characters and underscores are allowed",
		LangES: "solo se permiten caracteres alfanuméricos y guiones bajos",
	}
	alphaNumUnderRegex = regexp.MustCompile(`^[\w\s]+$`)

	requiredTag     = "required"
	requiredWithTag = "required_with"
	requiredText    = Text{
		LangEN: "this field is required",
		LangES: "este campo es obligatorio",
	}
)

// NewUniversalTranslator returns the translators of every supported locale, english being the fallback.
func NewUniversalTranslator() *ut.UniversalTranslator {
	_en := en.New()
	return ut.New(_en, _en, es.New())
}

// GetTranslator returns the translator for lang, falling back to english.
func GetTranslator(uni *ut.UniversalTranslator, lang string) ut.Translator {
	if trans, found := uni.GetTranslator(lang); found {
		return trans
	}
	trans, _ := uni.GetTranslator(DefaultLang)
	return trans
}

// InitValidators instantiates the validator for use.
func InitValidators(validate *validator.Validate, uni *ut.UniversalTranslator) {
	_ = en_translations.RegisterDefaultTranslations(validate, GetTranslator(uni, LangEN))
	_ = es_translations.RegisterDefaultTranslations(validate, GetTranslator(uni, LangES))

	// Use JSON tag names for errors instead of Go struct names.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// register custom validators
	_ = validate.RegisterValidation(alphaNumUnderTag, alphaNumUnderValidation)
	RegisterCustomTranslation(validate, uni, alphaNumUnderTag, alphaNumUnderText)

	RegisterCustomTranslation(validate, uni, requiredTag, requiredText, true)
	RegisterCustomTranslation(validate, uni, requiredWithTag, requiredText, true)
}

// RegisterCustomTranslation registers a custom translation for the specified validation tag, in every locale.
func RegisterCustomTranslation(validate *validator.Validate, uni *ut.UniversalTranslator, tag string, text Text, override ...bool) {
	var ovrd bool
	if len(override) > 0 {
		ovrd = override[0]
	}
	for _, lang := range Languages {
		msg, ok := text[lang]
		if !ok {
			msg = text[DefaultLang]
		}
		_ = validate.RegisterTranslation(
			tag, GetTranslator(uni, lang),
			func(t ut.Translator) error { return t.Add(tag, msg, ovrd) },
			func(t ut.Translator, fe validator.FieldError) string {
				s, _ := t.T(tag, fe.Field())
				return s
			},
		)
	}
}

// Custom Global Validators

// alphaNumUnderValidation only allows alphanumeric characters and underscores.
func alphaNumUnderValidation(fl validator.FieldLevel) bool {
	return alphaNumUnderRegex.MatchString(fl.Field().String())
}
