package classifier

import "rizetracker/pkg/models"

// 默认分类,未知域名一律归入
const (
	DefaultCategory = "Other"
	DefaultScore    = 3
)

// websiteCategories 已知域名的分类表
// 生产力评分 1-5: 开发工具 4-5,社交/娱乐 2,沟通/效率工具 3-5
var websiteCategories = map[string]models.Classification{
	"github.com":           {Category: "Development", ProductivityScore: 5},
	"stackoverflow.com":    {Category: "Development", ProductivityScore: 4},
	"youtube.com":          {Category: "Entertainment", ProductivityScore: 2},
	"twitter.com":          {Category: "Social Media", ProductivityScore: 2},
	"facebook.com":         {Category: "Social Media", ProductivityScore: 2},
	"instagram.com":        {Category: "Social Media", ProductivityScore: 2},
	"linkedin.com":         {Category: "Professional", ProductivityScore: 4},
	"gmail.com":            {Category: "Communication", ProductivityScore: 3},
	"slack.com":            {Category: "Communication", ProductivityScore: 4},
	"notion.so":            {Category: "Productivity", ProductivityScore: 5},
	"trello.com":           {Category: "Productivity", ProductivityScore: 5},
	"asana.com":            {Category: "Productivity", ProductivityScore: 5},
	"reddit.com":           {Category: "Social Media", ProductivityScore: 2},
	"news.ycombinator.com": {Category: "News", ProductivityScore: 3},
	"medium.com":           {Category: "Reading", ProductivityScore: 4},
}

// Classify 按域名查询分类和生产力评分
// 纯查表,永远成功: 未知域名返回 {Other, 3}
func Classify(domain string) models.Classification {
	if c, ok := websiteCategories[domain]; ok {
		return c
	}
	return models.Classification{Category: DefaultCategory, ProductivityScore: DefaultScore}
}
