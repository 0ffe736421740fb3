package oss

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/insight_go_server/config"
)

func TestReportKey(t *testing.T) {
	at := time.Unix(1700000000, 0)
	assert.Equal(t, "reports/7/job-1/1700000000.json", ReportKey(7, "job-1", at))
}

func TestGetURL(t *testing.T) {
	client, err := NewClient(&config.OSSConfig{
		Endpoint:        "oss-cn-hangzhou.aliyuncs.com",
		AccessKeyID:     "id",
		AccessKeySecret: "secret",
		BucketName:      "insight-reports",
	})
	require.NoError(t, err)

	assert.Equal(t, "https://insight-reports.oss-cn-hangzhou.aliyuncs.com/reports/a.json", client.GetURL("reports/a.json"))

	client.cdnDomain = "cdn.example.com"
	assert.Equal(t, "https://cdn.example.com/reports/a.json", client.GetURL("reports/a.json"))
}
