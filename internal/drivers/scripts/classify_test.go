package scripts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ternarybob/pagekit/internal/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		msg    string
		thrown bool
		want   models.ErrorKind
	}{
		{"Error: stale element reference", true, models.KindStale},
		{"Could not find object with given id (-32000)", false, models.KindStale},
		{"Cannot find context with specified id", false, models.KindStale},
		{"Error: no such element: element is not in a form", true, models.KindNotFound},
		{"Error: element is not editable", true, models.KindNotInteractable},
		{"write: broken pipe", false, models.KindDisconnected},
		{"SyntaxError: 'div[' is not a valid selector", true, models.KindInvalidLocator},
		{"Error: unknown locator strategy foo", true, models.KindInvalidLocator},
		{"TypeError: x is undefined", true, models.KindScript},
		{"something odd", false, models.KindOther},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.msg, tt.thrown))
		})
	}
}

func TestElementFunctionsCarryGuard(t *testing.T) {
	for name, js := range map[string]string{
		"text":      Text,
		"attribute": Attribute,
		"rect":      Rect,
		"displayed": IsDisplayed,
		"clear":     Clear,
		"submit":    Submit,
	} {
		assert.True(t, strings.HasPrefix(js, "function("), name)
		assert.Contains(t, js, StaleMessage, name)
	}
	assert.Equal(t, "function() {\nreturn 1;\n}", Function("return 1;"))
}
