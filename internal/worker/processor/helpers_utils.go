package processor

import (
	"fmt"
	"strings"

	"montage/internal/assets"
)

const maxErrorLen = 2000

// OutputKey es la clave de objeto del render final de un job flat.
func OutputKey(projectID, jobID string) string {
	projectID = strings.TrimSpace(projectID)
	if projectID == "" {
		projectID = "default"
	}
	return fmt.Sprintf("renders/%s/%s/output.mp4", assets.SanitizeFilename(projectID), assets.SanitizeFilename(jobID))
}

// truncate recorta un mensaje de error para guardarlo en el job.
func truncate(msg string, max int) string {
	if len(msg) <= max {
		return msg
	}
	return msg[:max]
}
