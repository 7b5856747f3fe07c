package main

import (
	"encoding/json"
	"html/template"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/wneessen/go-mail"
)

func loadTemplates(t *testing.T) map[string]*template.Template {
	t.Helper()

	templates := map[string]*template.Template{}
	for typ, kind := range mailKinds {
		tmpl, err := template.ParseFiles(filepath.Join("..", "..", "templates", kind.template))
		require.NoError(t, err)
		templates[typ] = tmpl
	}
	return templates
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Email.SMTP.Username = "noreply@example.com"
	return cfg
}

func TestBuildRunFinishedMessage(t *testing.T) {
	body, err := json.Marshal(domain.MailMessage{
		Type: domain.MailTypeRunFinished,
		To:   "zhangsan@example.com",
		Data: domain.RunFinishedMailData{
			FullName:       "张三",
			RunID:          7,
			RunName:        "demo",
			Objective:      "sum",
			Status:         domain.RunStatusSucceeded,
			Generations:    300,
			BestObjective:  0,
			BestChromosome: []float64{0, 0, 0},
		},
	})
	require.NoError(t, err)

	msg, err := buildMessage(testConfig(), loadTemplates(t), body)
	require.NoError(t, err)
	assert.Equal(t, []string{"GA 优化平台 - 任务已结束"}, msg.GetGenHeader(mail.HeaderSubject))
}

func TestBuildCreateUserMessage(t *testing.T) {
	body, err := json.Marshal(domain.MailMessage{
		Type: domain.MailTypeCreateUser,
		To:   "lisi@example.com",
		Data: domain.CreateUserMailData{FullName: "李四", Username: "lisi", Password: "secret"},
	})
	require.NoError(t, err)

	_, err = buildMessage(testConfig(), loadTemplates(t), body)
	assert.NoError(t, err)
}

func TestBuildMessageRejectsBadInput(t *testing.T) {
	templates := loadTemplates(t)

	_, err := buildMessage(testConfig(), templates, []byte(`not json`))
	assert.Error(t, err)

	_, err = buildMessage(testConfig(), templates, []byte(`{"type":"reset_password","to":"a@example.com","data":{}}`))
	assert.Error(t, err)

	_, err = buildMessage(testConfig(), templates, []byte(`{"type":"create_user","to":"not-an-address","data":{}}`))
	assert.Error(t, err)
}
