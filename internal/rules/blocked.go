package rules

// 统计、日志、广告、计数器等请求，抓取时无用且可能暴露自动化行为
var blockedBasic = []string{
	"https://favorites.api.2gis.*/*",
	"https://2gis.*/_/log",
	"https://2gis.*/_/metrics",
	"https://google-analytics.com/*",
	"https://www.google-analytics.com/*",
	"https://counter.yadro.ru/*",
	"https://www.tns-counter.ru/*",
	"https://mc.yandex.ru/*",
	"https://catalog.api.2gis.ru/3.0/ads/*",
	"https://d-assets.2gis.*/privacyPolicyBanner*.js",
	"https://vk.com/*",
}

// 字体、地图瓦片、样式、图片等视觉资源
var blockedExtended = []string{
	"https://d-assets.2gis.*/fonts/*",
	"https://mapgl.2gis.*/api/fonts/*",
	"https://tile*.maps.2gis.*",
	"https://s*.bss.2gis.*",
	"https://styles.api.2gis.*",
	"https://video-pr.api.2gis.*",
	"https://api.photo.2gis.*/*",
	"https://market-backend.api.2gis.*",
	"https://traffic*.edromaps.2gis.*",
	"https://disk.2gis.*/styles/*",
}

// BlockedURLs 返回需要在网络层屏蔽的 URL 通配符列表
func BlockedURLs(extended bool) []string {
	out := make([]string, 0, len(blockedBasic)+len(blockedExtended))
	out = append(out, blockedBasic...)
	if extended {
		out = append(out, blockedExtended...)
	}
	return out
}
