package dom

import (
	"testing"

	"evalconsole/application/locator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioPage = `<!DOCTYPE html>
<html><body>
  <div id="a">plain</div>
  <span id="host">
    <template shadowrootmode="open">
      <p class="target">inside</p>
    </template>
  </span>
</body></html>`

func TestParse_DetachesShadowContent(t *testing.T) {
	doc, err := ParseString(scenarioPage)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ShadowRootCount())

	el, err := doc.QuerySelector(".target")
	require.NoError(t, err)
	assert.Nil(t, el, "light-tree query must not reach shadow content")

	tmpl, err := doc.QuerySelector("template")
	require.NoError(t, err)
	assert.Nil(t, tmpl)
}

func TestLocate_Scenario(t *testing.T) {
	doc, err := ParseString(scenarioPage)
	require.NoError(t, err)

	found, ok, err := locator.Locate(".target", doc)
	require.NoError(t, err)
	require.True(t, ok)

	p := found.(*Element)
	assert.Equal(t, "p", p.Tag())
	assert.Equal(t, "inside", p.Text())

	_, ok, err = locator.Locate("#missing", doc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestLocate_ShallowFirstOnRealDocument(t *testing.T) {
	doc, err := ParseString(`<html><body>
		<x-card><template shadowrootmode="open"><button id="go">nested</button></template></x-card>
		<button id="go">shallow</button>
	</body></html>`)
	require.NoError(t, err)

	found, ok, err := locator.Locate("#go", doc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "shallow", found.(*Element).Text())
}

func TestLocate_NestedShadowRoots(t *testing.T) {
	doc, err := ParseString(`<html><body>
		<outer-el><template shadowrootmode="open">
			<inner-el><template shadowrootmode="open">
				<canvas id="chart"></canvas>
			</template></inner-el>
		</template></outer-el>
	</body></html>`)
	require.NoError(t, err)
	assert.Equal(t, 2, doc.ShadowRootCount())

	found, ok, err := locator.Locate("#chart", doc)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "canvas", found.(*Element).Tag())
}

func TestLocate_ClosedShadowRootNotSearched(t *testing.T) {
	doc, err := ParseString(`<html><body>
		<x-secret><template shadowrootmode="closed"><i class="hidden"></i></template></x-secret>
	</body></html>`)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.ShadowRootCount())

	_, ok, err := locator.Locate(".hidden", doc)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestQuerySelector_InvalidSelector(t *testing.T) {
	doc, err := ParseString(scenarioPage)
	require.NoError(t, err)

	_, err = doc.QuerySelector("div[")
	assert.Error(t, err)

	_, _, err = locator.Locate("div[", doc)
	assert.Error(t, err)
}

func TestShadowRoot_HostAndMode(t *testing.T) {
	doc, err := ParseString(scenarioPage)
	require.NoError(t, err)

	hostEl, err := doc.QuerySelector("#host")
	require.NoError(t, err)
	require.NotNil(t, hostEl)

	sr, ok := hostEl.ShadowRoot().(*ShadowRoot)
	require.True(t, ok)
	assert.Equal(t, ShadowModeOpen, sr.Mode())
	assert.Equal(t, "host", sr.Host().ID())

	plain, err := doc.QuerySelector("#a")
	require.NoError(t, err)
	assert.Nil(t, plain.ShadowRoot())
}

func TestSelectorCache(t *testing.T) {
	cache, err := NewSelectorCache(2)
	require.NoError(t, err)

	_, err = cache.Compile("div")
	require.NoError(t, err)
	_, err = cache.Compile("div")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	_, err = cache.Compile("p")
	require.NoError(t, err)
	_, err = cache.Compile("span")
	require.NoError(t, err)
	assert.Equal(t, 2, cache.Len())

	_, err = cache.Compile("[")
	assert.Error(t, err)
	assert.Equal(t, 2, cache.Len())
}
