package classifier

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassifyKnownDomains(t *testing.T) {
	c := Classify("github.com")
	require.Equal(t, "Development", c.Category)
	require.Equal(t, 5, c.ProductivityScore)

	c = Classify("youtube.com")
	require.Equal(t, "Entertainment", c.Category)
	require.Equal(t, 2, c.ProductivityScore)

	c = Classify("news.ycombinator.com")
	require.Equal(t, "News", c.Category)
	require.Equal(t, 3, c.ProductivityScore)
}

func TestClassifyUnknownDomain(t *testing.T) {
	// 未知域名一律归入默认分类,永远不报错
	for _, domain := range []string{"example.org", "internal.corp", ""} {
		c := Classify(domain)
		require.Equal(t, DefaultCategory, c.Category)
		require.Equal(t, DefaultScore, c.ProductivityScore)
	}
}

func TestClassifyExactMatchOnly(t *testing.T) {
	// 查表按完整域名精确匹配,子域名不继承主域名的分类
	c := Classify("gist.github.com")
	require.Equal(t, DefaultCategory, c.Category)
}
