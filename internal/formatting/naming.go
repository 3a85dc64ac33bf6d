package formatting

import (
	"fmt"
	"strings"
	"time"
)

// ddmmYYYY_HH:MM:SS
const artifactTimestamp = "02012006_15:04:05"

func VivaArtifactName(assignmentTitle string, at time.Time) string {
	return fmt.Sprintf("%s_generated_%s.json", titleOr(assignmentTitle, "viva"), at.Format(artifactTimestamp))
}

func RubricArtifactName(rubricTitle string, at time.Time) string {
	return fmt.Sprintf("%s_rubric_%s.json", titleOr(rubricTitle, "rubric"), at.Format(artifactTimestamp))
}

func titleOr(title, fallback string) string {
	if trimmed := strings.TrimSpace(title); trimmed != "" {
		return trimmed
	}
	return fallback
}
