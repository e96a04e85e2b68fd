package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testCategories() []CategoryDictionary {
	return []CategoryDictionary{
		{Name: "it", Dictionary: Dictionary{
			Words:   []string{"computadora", "internet", "impresora", "red", "wifi"},
			Phrases: []string{"no prende"},
		}},
		{Name: "man", Dictionary: Dictionary{
			Words:   []string{"fuga", "agua", "luz", "puerta", "baño"},
			Phrases: []string{"aire acondicionado"},
		}},
		{Name: "lim", Dictionary: Dictionary{
			Words: []string{"limpieza", "basura", "sucio"},
		}},
	}
}

func testIntents() IntentDictionaries {
	return IntentDictionaries{
		Confirmation: Dictionary{Words: []string{"listo", "terminado", "resuelto"}, Phrases: []string{"ya quedó"}},
		Feedback:     Dictionary{Words: []string{"pregunta", "duda"}, Phrases: []string{"necesito mas informacion"}},
		Cancellation: Dictionary{Words: []string{"cancelar"}, Phrases: []string{"ya no es necesario"}},
	}
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"hay", "fuga", "en", "el", "bano"}, Tokenize("¡Hay fuga, en el BAÑO!"))
	assert.Empty(t, Tokenize("  ¿? "))
}

func TestCategoriesSingleMatch(t *testing.T) {
	c := New(true, 0)
	assert.Equal(t, []string{"man"}, c.Categories("fuga de agua en el baño", testCategories()))
}

func TestCategoriesPreserveDeclarationOrder(t *testing.T) {
	c := New(false, 0)
	got := c.Categories("hay basura junto a la puerta y no hay internet", testCategories())
	assert.Equal(t, []string{"it", "man", "lim"}, got)
}

func TestCategoriesPhrase(t *testing.T) {
	c := New(false, 0)
	assert.Equal(t, []string{"it"}, c.Categories("La pantalla no prende.", testCategories()))
	assert.Equal(t, []string{"man"}, c.Categories("El aire  acondicionado hace ruido", testCategories()))
}

func TestCategoriesNoMatch(t *testing.T) {
	c := New(true, 0)
	assert.Empty(t, c.Categories("buenos días a todos", testCategories()))
	assert.Empty(t, c.Categories("", testCategories()))
}

func TestCategoriesFuzzyOnlyInSimilarityMode(t *testing.T) {
	exact := New(false, 0)
	fuzzy := New(true, 0)
	assert.Empty(t, exact.Categories("la computadra se trabó", testCategories()))
	assert.Equal(t, []string{"it"}, fuzzy.Categories("la computadra se trabó", testCategories()))
}

func TestCategoriesShortTokensDoNotFuzzyMatch(t *testing.T) {
	c := New(true, 0.3)
	assert.Empty(t, c.Categories("de la y el", testCategories()))
}

func TestCategoriesDeterministic(t *testing.T) {
	c := New(true, 0)
	first := c.Categories("fuga de agua y el wifi no sirve", testCategories())
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, c.Categories("fuga de agua y el wifi no sirve", testCategories()))
	}
}

func TestIntent(t *testing.T) {
	c := New(true, 0)
	intents := testIntents()

	assert.Equal(t, IntentConfirmation, c.Intent("listo", intents))
	assert.Equal(t, IntentConfirmation, c.Intent("Ya quedó, gracias", intents))
	assert.Equal(t, IntentFeedback, c.Intent("tengo una duda sobre esto", intents))
	assert.Equal(t, IntentNone, c.Intent("vamos en camino", intents))
	assert.Equal(t, IntentNone, c.Intent("", intents))
}

func TestIntentCancellationRequiresExactMessage(t *testing.T) {
	c := New(true, 0)
	intents := testIntents()

	assert.Equal(t, IntentCancellation, c.Intent("Cancelar.", intents))
	assert.Equal(t, IntentCancellation, c.Intent("ya no es necesario", intents))
	assert.NotEqual(t, IntentCancellation, c.Intent("no hay que cancelar", intents))
	assert.NotEqual(t, IntentCancellation, c.Intent("cancelr", intents))
}
