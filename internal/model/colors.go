package model

// GroupColors is the palette used for groups created without a color.
var GroupColors = []string{
	"#6b7280", // gray
	"#3b82f6", // blue
	"#f59e0b", // amber
	"#10b981", // green
	"#9333ea", // purple
	"#ec4899", // pink
	"#ef4444", // red
	"#06b6d4", // cyan
}

// NextGroupColor picks a palette color from the current group count.
func NextGroupColor(groupCount int) string {
	return GroupColors[groupCount%len(GroupColors)]
}
