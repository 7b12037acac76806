package i18n

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedLocalesLoad(t *testing.T) {
	require.NoError(t, Initialize("en"))
	assert.Equal(t, "Market not found", T("en", KeyMarketNotFound))
	assert.Equal(t, "Mercado no encontrado", T("es", KeyMarketNotFound))
	assert.Equal(t, "Invalid input", T("en", KeyValidationInvalid, "input"))
	assert.ElementsMatch(t, []string{"en", "es"}, GetSupportedLanguages())
}

func TestFallbackToDefaultLanguage(t *testing.T) {
	fsys := fstest.MapFS{
		"loc/en.json": {Data: []byte(`{"greeting":"Hello","only.en":"English only"}`)},
		"loc/es.json": {Data: []byte(`{"greeting":"Hola"}`)},
	}
	tr := &I18n{translations: map[string]map[string]string{}, defaultLang: "en"}
	require.NoError(t, tr.LoadTranslations(fsys, "loc"))

	assert.Equal(t, "Hola", tr.T("es", "greeting"))
	assert.Equal(t, "English only", tr.T("es", "only.en"))
	assert.Equal(t, "missing.key", tr.T("fr", "missing.key"))
}
