package email

import (
	"context"
	"fmt"
	"net/smtp"

	"go.uber.org/zap"

	cfgpkg "github.com/voxloop/trialguard/pkg/config"
)

// SMTPNotifier delivers trial emails over plain SMTP. Template rendering is
// deliberately minimal here: the branded HTML lives with the marketing site,
// this service only guarantees the lifecycle facts reach the owner.
type SMTPNotifier struct {
	cfg cfgpkg.SMTPConfig
	log *zap.SugaredLogger
	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPNotifier(cfg *cfgpkg.Config, log *zap.SugaredLogger) *SMTPNotifier {
	return &SMTPNotifier{cfg: cfg.SMTP, log: log, send: smtp.SendMail}
}

func (n *SMTPNotifier) deliver(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return fmt.Errorf("recipient email is empty")
	}
	sender := n.cfg.Sender
	if sender == "" {
		sender = "no-reply@voxloop.io"
	}

	var auth smtp.Auth
	if n.cfg.Username != "" && n.cfg.Password != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	msg := []byte(
		fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n", sender, to, subject) +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
			body,
	)

	if err := n.send(addr, auth, sender, []string{to}, msg); err != nil {
		n.log.Errorw("smtp_send_failed", "to", to, "subject", subject, "err", err)
		return fmt.Errorf("smtp send failed: %w", err)
	}
	n.log.Infow("smtp_sent", "to", to, "subject", subject)
	return nil
}

func (n *SMTPNotifier) SendWelcome(ctx context.Context, p TrialPayload) error {
	subject := "Bienvenue ! Votre essai gratuit est actif"
	body := fmt.Sprintf(
		"Bonjour %s,\n\nVotre essai gratuit pour %s est actif : %d appels ou %d jours, jusqu'au %s.\n",
		p.OwnerName, p.BusinessName, p.CallsRemaining, p.DaysRemaining, p.TrialEndDate.Format("02/01/2006"),
	)
	return n.deliver(ctx, p.OwnerEmail, subject, body)
}

func (n *SMTPNotifier) SendTrialWarning(ctx context.Context, p TrialPayload) error {
	subject := "Votre essai gratuit arrive à sa fin"
	body := fmt.Sprintf(
		"Bonjour %s,\n\nIl vous reste %d appels et %d jours d'essai pour %s. Passez à une offre payante pour continuer sans interruption.\n",
		p.OwnerName, p.CallsRemaining, p.DaysRemaining, p.BusinessName,
	)
	return n.deliver(ctx, p.OwnerEmail, subject, body)
}

func (n *SMTPNotifier) SendTrialBlocked(ctx context.Context, p TrialPayload) error {
	subject := "Votre essai gratuit est terminé, service suspendu"
	body := fmt.Sprintf(
		"Bonjour %s,\n\nVotre essai pour %s est terminé (%s). Vos numéros sont suspendus. Activez une offre payante pour rétablir le service.\n",
		p.OwnerName, p.BusinessName, p.BlockReason,
	)
	return n.deliver(ctx, p.OwnerEmail, subject, body)
}

func (n *SMTPNotifier) SendDeletionWarning(ctx context.Context, p TrialPayload) error {
	subject := "Votre compte sera supprimé prochainement"
	body := fmt.Sprintf(
		"Bonjour %s,\n\nSans activation d'une offre payante, le compte de %s sera supprimé dans %d jour(s).\n",
		p.OwnerName, p.BusinessName, p.DaysUntilDeletion,
	)
	return n.deliver(ctx, p.OwnerEmail, subject, body)
}

func (n *SMTPNotifier) SendAccountDeleted(ctx context.Context, p TrialPayload) error {
	subject := "Votre compte a été supprimé"
	body := fmt.Sprintf(
		"Bonjour %s,\n\nLe compte de %s a été supprimé à l'issue de la période d'essai. Vous pouvez créer un nouveau compte à tout moment.\n",
		p.OwnerName, p.BusinessName,
	)
	return n.deliver(ctx, p.OwnerEmail, subject, body)
}
