package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"
)

type SMTPNotifier struct {
	host   string
	port   int
	from   string
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	logger *zap.Logger
}

func NewSMTPNotifier(host string, port int, from string, logger *zap.Logger) *SMTPNotifier {
	return &SMTPNotifier{host: host, port: port, from: from, send: smtp.SendMail, logger: logger}
}

// NotifyFailure tells the requester that their summary could not be made.
func (n *SMTPNotifier) NotifyFailure(_ context.Context, userEmail, requestID, filename, errorMsg string) error {
	addr := fmt.Sprintf("%s:%d", n.host, n.port)

	err := n.send(addr, nil, n.from, []string{userEmail}, n.failureMessage(userEmail, requestID, filename, errorMsg))
	if err != nil {
		n.logger.Error("failed to send failure notification email",
			zap.String("to", userEmail),
			zap.String("request_id", requestID),
			zap.Error(err),
		)
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info("failure notification email sent",
		zap.String("to", userEmail),
		zap.String("request_id", requestID),
	)
	return nil
}

func (n *SMTPNotifier) failureMessage(userEmail, requestID, filename, errorMsg string) []byte {
	subject := fmt.Sprintf("FIAP X - Highlight Summary Failed [%s]", filename)
	body := fmt.Sprintf(
		"Hello,\r\n\r\n"+
			"We could not create a highlight summary for your video.\r\n\r\n"+
			"Request ID: %s\r\n"+
			"Video: %s\r\n"+
			"Error: %s\r\n\r\n"+
			"Please upload the video again or contact support.\r\n\r\n"+
			"-- FIAP X Highlight Service",
		requestID, filename, errorMsg,
	)
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s",
		n.from, userEmail, subject, body,
	))
}
