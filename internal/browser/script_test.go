package browser

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/autopilot/api/schemas"
)

func TestLocateExpression(t *testing.T) {
	expr, err := locateExpression(schemas.Text(`Say "hi"`), "scroll", scrollArg{DX: 0, DY: 40})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(expr, "("+locateFunc+")("))
	assert.Contains(t, expr, `{"by":"text","pattern":"Say \"hi\""}`)
	assert.Contains(t, expr, `"scroll"`)
	assert.Contains(t, expr, `{"dx":0,"dy":40}`)
}

func TestLocateExpression_PlainLookup(t *testing.T) {
	expr, err := locateExpression(schemas.CSS("#login"), "", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(expr, `({"by":"css","selector":"#login"}, "", null)`))
}

func TestClipboardWriteExpression(t *testing.T) {
	expr, err := clipboardWriteExpression("line1\n\"quoted\"")
	require.NoError(t, err)
	assert.Contains(t, expr, `writeText("line1\n\"quoted\"")`)
}

func TestScrollExpression(t *testing.T) {
	assert.Equal(t, "(window.scrollBy(-5, 120), true)", scrollExpression(-5, 120))
}

func TestUploadQuery(t *testing.T) {
	sel, by, err := uploadQuery(schemas.CSS("input[type=file]"))
	require.NoError(t, err)
	assert.Equal(t, "input[type=file]", sel)
	assert.NotNil(t, by)

	sel, _, err = uploadQuery(schemas.ElementID("avatar"))
	require.NoError(t, err)
	assert.Equal(t, "avatar", sel)

	_, _, err = uploadQuery(schemas.Text("Upload"))
	assert.ErrorContains(t, err, "file upload needs a css, xpath or id locator")
}

func TestLocateResultRect(t *testing.T) {
	r := locateResult{Found: true, X: 10, Y: 20, Width: 30, Height: 40}.rect()
	x, y := r.Center()
	assert.Equal(t, 25, x)
	assert.Equal(t, 40, y)
}
