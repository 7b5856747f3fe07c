package main

import (
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/config"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/domain"
	"github.com/sysu-ecnc-dev/ga-optimizer/backend/internal/mq"
	"github.com/wneessen/go-mail"
)

// mailKind 描述一种邮件的模板和主题
type mailKind struct {
	template string
	subject  string
	newData  func() any
}

var mailKinds = map[string]mailKind{
	domain.MailTypeCreateUser: {
		template: "new_account_email.html",
		subject:  "GA 优化平台 - 账户信息",
		newData:  func() any { return &domain.CreateUserMailData{} },
	},
	domain.MailTypeRunFinished: {
		template: "run_finished_email.html",
		subject:  "GA 优化平台 - 任务已结束",
		newData:  func() any { return &domain.RunFinishedMailData{} },
	},
}

// incomingMail 与 domain.MailMessage 字段相同，Data 延迟到确定类型后再解析
type incomingMail struct {
	Type string          `json:"type"`
	To   string          `json:"to"`
	Data json.RawMessage `json:"data"`
}

// buildMessage 根据消息类型渲染邮件，返回的错误都不值得重试
func buildMessage(cfg *config.Config, templates map[string]*template.Template, body []byte) (*mail.Msg, error) {
	incoming := incomingMail{}
	if err := json.Unmarshal(body, &incoming); err != nil {
		return nil, fmt.Errorf("邮件信息反序列化失败: %w", err)
	}

	kind, ok := mailKinds[incoming.Type]
	if !ok {
		return nil, fmt.Errorf("不支持的邮件类型 %q", incoming.Type)
	}

	data := kind.newData()
	if err := json.Unmarshal(incoming.Data, data); err != nil {
		return nil, fmt.Errorf("邮件数据反序列化失败: %w", err)
	}

	msg := mail.NewMsg()
	if err := msg.From(cfg.Email.SMTP.Username); err != nil {
		return nil, fmt.Errorf("无法设置邮件发件人: %w", err)
	}
	if err := msg.To(incoming.To); err != nil {
		return nil, fmt.Errorf("无法设置邮件收件人: %w", err)
	}
	if err := msg.SetBodyHTMLTemplate(templates[incoming.Type], data); err != nil {
		return nil, fmt.Errorf("无法设置邮件正文: %w", err)
	}
	msg.Subject(kind.subject)

	return msg, nil
}

func main() {
	/**********************************************
	 * 创建 logger
	 **********************************************/
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	/**********************************************
	 * 读取配置文件
	 **********************************************/
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("无法读取配置文件", "error", err)
		return
	}

	/**********************************************
	 * 预先解析邮件模板
	 **********************************************/
	templates := make(map[string]*template.Template, len(mailKinds))
	for typ, kind := range mailKinds {
		tmpl, err := template.ParseFiles(filepath.Join(cfg.Email.TemplateDir, kind.template))
		if err != nil {
			logger.Error("无法解析邮件模板", "template", kind.template, "error", err)
			return
		}
		templates[typ] = tmpl
	}

	/**********************************************
	 * 创建邮件客户端
	 **********************************************/
	client, err := mail.NewClient(cfg.Email.SMTP.Host,
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithSSL(),
		mail.WithPort(cfg.Email.SMTP.Port),
		mail.WithUsername(cfg.Email.SMTP.Username),
		mail.WithPassword(cfg.Email.SMTP.Password),
	)
	if err != nil {
		logger.Error("无法创建邮件客户端", "error", err)
		return
	}
	defer client.Close()

	// 验证邮件客户端是否连接成功
	dialCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Email.SMTP.DialTimeout)*time.Second)
	defer cancel()
	if err := client.DialWithContext(dialCtx); err != nil {
		logger.Error("无法连接到邮件服务器", "error", err)
		return
	}

	/**********************************************
	 * 连接 RabbitMQ
	 **********************************************/
	conn, err := amqp.Dial(cfg.RabbitMQ.DSN)
	if err != nil {
		logger.Error("无法连接到 RabbitMQ", "error", err)
		return
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Error("无法创建通道", "error", err)
		return
	}
	defer ch.Close()

	if err := mq.DeclareQueues(ch); err != nil {
		logger.Error("无法声明队列", "error", err)
		return
	}

	msgs, err := ch.Consume(
		mq.EmailQueue, // 队列
		"",            // 消费者标识，由 RabbitMQ 自动分配
		false,         // 手动确认
		false,         // 是否独占队列
		false,         // RabbitMQ 不支持 noLocal
		false,         // 等待 RabbitMQ 响应
		nil,           // 额外参数
	)
	if err != nil {
		logger.Error("无法消费消息", "error", err)
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	wg := sync.WaitGroup{}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-msgs:
				if !ok {
					logger.Error("消息通道已关闭")
					return
				}
				handleDelivery(logger, cfg, templates, client, delivery)
			}
		}
	}()

	logger.Info("等待消息...（按 CTRL+C 退出）")
	<-sigChan

	logger.Info("正在关闭 mail worker...")
	cancel()
	wg.Wait()
	logger.Info("mail worker 已成功关闭")
}

func handleDelivery(logger *slog.Logger, cfg *config.Config, templates map[string]*template.Template, client *mail.Client, delivery amqp.Delivery) {
	logger.Info("收到消息", "messageID", delivery.MessageId)

	msg, err := buildMessage(cfg, templates, delivery.Body)
	if err != nil {
		logger.Error("无法构建邮件", "messageID", delivery.MessageId, "error", err)
		_ = delivery.Nack(false, false)
		return
	}

	if err := client.DialAndSend(msg); err != nil {
		logger.Error("邮件发送失败", "messageID", delivery.MessageId, "error", err)
		_ = delivery.Nack(false, true) // 将消息重新入队
		return
	}

	_ = delivery.Ack(false)
}
