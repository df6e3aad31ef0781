package widgets

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	urlPattern          = regexp.MustCompile(`https?://[^\s\]]+`)
	coordinatePattern   = regexp.MustCompile(`(-?\d{1,2}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)`)
	zoomPattern         = regexp.MustCompile(`(?i)zoom\s*[:=]?\s*(\d{1,2})`)
	mapStylePattern     = regexp.MustCompile(`(?i)\b(roadmap|satellite|hybrid|terrain)\b`)
	chartTypePattern    = regexp.MustCompile(`(?i)\b(bar|line|pie|area|scatter|donut)\b`)
	calendarViewPattern = regexp.MustCompile(`(?i)\b(month|week|day|agenda)\b`)
	flagPattern         = regexp.MustCompile(`(?i)\b(autoplay|muted|loop|nocontrols)\b`)
)

func extractMap(md *Metadata, src Source, m Match) {
	cfg := &MapConfig{
		Latitude:     DefaultMapLatitude,
		Longitude:    DefaultMapLongitude,
		Zoom:         DefaultMapZoom,
		Style:        DefaultMapStyle,
		CenterSource: CenterDefault,
	}

	if c := coordinatePattern.FindStringSubmatch(src.Text); c != nil {
		lat, errLat := strconv.ParseFloat(c[1], 64)
		lng, errLng := strconv.ParseFloat(c[2], 64)
		if errLat == nil && errLng == nil && lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180 {
			cfg.Latitude, cfg.Longitude = lat, lng
			cfg.CenterSource = CenterText
		}
	}
	if z := zoomPattern.FindStringSubmatch(src.Text); z != nil {
		if zoom, err := strconv.Atoi(z[1]); err == nil && zoom <= 22 {
			cfg.Zoom = zoom
		}
	}
	if s := mapStylePattern.FindStringSubmatch(src.Text); s != nil {
		cfg.Style = strings.ToLower(s[1])
	}
	if cfg.CenterSource == CenterDefault {
		cfg.Query = mapQuery(m.Content)
	}

	md.Map = cfg
}

// mapQuery strips configuration tokens from the tag content, leaving the
// place name to geocode.
func mapQuery(content string) string {
	q := zoomPattern.ReplaceAllString(content, " ")
	q = mapStylePattern.ReplaceAllString(q, " ")
	return strings.Trim(strings.Join(strings.Fields(q), " "), " ,;")
}

func extractVideo(md *Metadata, src Source, m Match) {
	cfg := &VideoConfig{
		URL:         urlPattern.FindString(src.Text),
		Provider:    videoProvider(src.Text),
		Controls:    true,
		AspectRatio: DefaultVideoAspectRatio,
	}
	if src.Box.Width > 0 && src.Box.Height > 0 {
		cfg.AspectRatio = src.Box.Width / src.Box.Height
	}
	for _, f := range flagPattern.FindAllString(src.Text, -1) {
		switch strings.ToLower(f) {
		case "autoplay":
			cfg.Autoplay = true
		case "muted":
			cfg.Muted = true
		case "loop":
			cfg.Loop = true
		case "nocontrols":
			cfg.Controls = false
		}
	}
	md.Video = cfg
}

func videoProvider(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "youtube.com"), strings.Contains(lower, "youtu.be"), strings.Contains(lower, "youtube"):
		return "youtube"
	case strings.Contains(lower, "vimeo"):
		return "vimeo"
	}
	return DefaultVideoProvider
}

func extractIFrame(md *Metadata, src Source, m Match) {
	md.IFrame = &IFrameConfig{
		URL:             urlPattern.FindString(src.Text),
		Sandbox:         true,
		AllowFullscreen: strings.Contains(strings.ToLower(src.Text), "fullscreen"),
	}
}

func extractChart(md *Metadata, src Source, m Match) {
	cfg := &ChartConfig{ChartType: DefaultChartType, DataSource: m.Content}
	if c := chartTypePattern.FindStringSubmatch(src.Text); c != nil {
		cfg.ChartType = strings.ToLower(c[1])
	}
	md.Chart = cfg
}

func extractCalendar(md *Metadata, src Source, m Match) {
	cfg := &CalendarConfig{View: DefaultCalendarView, ShowWeekends: true}
	if v := calendarViewPattern.FindStringSubmatch(src.Text); v != nil {
		cfg.View = strings.ToLower(v[1])
	}
	if strings.Contains(strings.ToLower(src.Text), "weekdays") {
		cfg.ShowWeekends = false
	}
	md.Calendar = cfg
}
