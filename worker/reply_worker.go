package worker

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"bidflow/config"
	"bidflow/models"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-message/mail"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ReplyWorker polls the follow-up inbox over IMAP and records replies from
// enrolled contacts as `replied` log entries. The condition evaluator picks
// these up for skip_if_replied steps; the worker never touches enrollment
// state itself.
type ReplyWorker struct {
	DB     *gorm.DB
	Config config.IMAPConfig
	Logger *logrus.Logger
}

func NewReplyWorker(db *gorm.DB, cfg config.IMAPConfig, logger *logrus.Logger) *ReplyWorker {
	return &ReplyWorker{DB: db, Config: cfg, Logger: logger}
}

func (rw *ReplyWorker) Start(ctx context.Context) {
	if rw.Config.Host == "" {
		rw.Logger.Info("IMAP not configured, reply detection disabled")
		return
	}

	rw.Logger.Info("Reply worker started")
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			rw.Logger.Info("Reply worker shutting down...")
			return
		case <-ticker.C:
			if err := rw.fetchReplies(); err != nil {
				rw.Logger.WithError(err).Error("Failed to fetch replies")
			}
		}
	}
}

func (rw *ReplyWorker) fetchReplies() error {
	imapAddr := fmt.Sprintf("%s:%d", rw.Config.Host, rw.Config.Port)
	imapClient, err := client.DialTLS(imapAddr, &tls.Config{ServerName: rw.Config.Host})
	if err != nil {
		return fmt.Errorf("failed to connect to IMAP server: %w", err)
	}
	defer imapClient.Logout()

	if err := imapClient.Login(rw.Config.Username, rw.Config.Password); err != nil {
		return fmt.Errorf("failed to login to IMAP server: %w", err)
	}

	if _, err := imapClient.Select(rw.Config.Mailbox, false); err != nil {
		return fmt.Errorf("failed to select mailbox: %w", err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{"\\Seen"}
	ids, err := imapClient.Search(criteria)
	if err != nil {
		return fmt.Errorf("failed to search messages: %w", err)
	}
	if len(ids) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- imapClient.Fetch(seqset, []imap.FetchItem{imap.FetchEnvelope, imap.FetchItem("BODY.PEEK[]")}, messages)
	}()

	for msg := range messages {
		if err := rw.recordReply(msg); err != nil {
			rw.Logger.WithError(err).WithField("seq_num", msg.SeqNum).
				Warn("Failed to process inbound message")
			continue
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("error during fetch: %w", err)
	}
	return nil
}

// recordReply matches the sender address against active enrollments and
// appends a replied log row for each match.
func (rw *ReplyWorker) recordReply(msg *imap.Message) error {
	if msg.Envelope == nil || len(msg.Envelope.From) == 0 {
		return nil
	}
	from := strings.ToLower(msg.Envelope.From[0].Address())

	var enrollments []models.Enrollment
	if err := rw.DB.Where("status = ? AND LOWER(contact_email) = ?", models.EnrollmentActive, from).
		Find(&enrollments).Error; err != nil {
		return err
	}
	if len(enrollments) == 0 {
		return nil
	}

	body := rw.extractTextBody(msg)

	for _, enrollment := range enrollments {
		// One replied row per enrollment is enough for the evaluator.
		var existing int64
		rw.DB.Model(&models.SequenceLog{}).
			Where("enrollment_id = ? AND status = ?", enrollment.ID, models.LogStatusReplied).
			Count(&existing)
		if existing > 0 {
			continue
		}

		logEntry := models.SequenceLog{
			EnrollmentID: enrollment.ID,
			StepOrder:    enrollment.CurrentStep,
			ActionType:   models.ActionEmail,
			Subject:      msg.Envelope.Subject,
			Content:      body,
			Status:       models.LogStatusReplied,
			MessageID:    msg.Envelope.MessageId,
			ExecutedAt:   time.Now(),
		}
		if err := rw.DB.Create(&logEntry).Error; err != nil {
			return fmt.Errorf("failed to save reply log: %w", err)
		}

		rw.Logger.WithFields(logrus.Fields{
			"enrollment_id": enrollment.ID,
			"from":          from,
		}).Info("Recorded reply from enrolled contact")
	}

	return nil
}

func (rw *ReplyWorker) extractTextBody(msg *imap.Message) string {
	section := imap.BodySectionName{}
	literal := msg.GetBody(&section)
	if literal == nil {
		return ""
	}

	mr, err := mail.CreateReader(literal)
	if err != nil {
		return ""
	}

	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return ""
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			if strings.Contains(contentType, "text/plain") {
				b, err := io.ReadAll(p.Body)
				if err != nil {
					return ""
				}
				return string(b)
			}
		}
	}
	return ""
}
