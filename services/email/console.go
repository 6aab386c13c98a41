package emailsvc

import (
	"fmt"
	"net/mail"
	"strings"
	"sync"

	"github.com/faridzul/jadual/core"
)

var (
	// SentMessages collects messages in test mode instead of printing them.
	SentMessages = make([]core.EmailMessage, 0)
	mu           sync.Mutex
)

type consoleService struct {
	defaultFromEmail mail.Address
	subjPrefix       string
	disableOutput    bool
}

var _ core.EmailService = (*consoleService)(nil)

func NewConsoleService(conf *core.Config) core.EmailService {
	return &consoleService{
		defaultFromEmail: conf.DefaultFromEmail,
		subjPrefix:       "[" + conf.AppName + "] ",
		disableOutput:    conf.TestMode,
	}
}

func (svc consoleService) SendMessages(messages ...*core.EmailMessage) {
	var wg sync.WaitGroup
	for _, msg := range messages {
		wg.Add(1)
		go func(msg *core.EmailMessage) {
			defer wg.Done()
			svc.sendMessage(msg)
		}(msg)
	}
	wg.Wait()
}

func (svc consoleService) sendMessage(msg *core.EmailMessage) {
	if !msg.HasRecipients() || !msg.HasContent() {
		return
	}

	mu.Lock()
	SentMessages = append(SentMessages, *msg)
	mu.Unlock()

	if svc.disableOutput {
		return
	}

	tos := make([]string, 0, len(msg.To))
	for _, to := range msg.To {
		tos = append(tos, to.String())
	}
	fmt.Printf(
		"From: %s\nTo: %s\nSubject: %s\n\n%s\n%s\n",
		svc.defaultFromEmail.String(),
		strings.Join(tos, ", "),
		svc.subjPrefix+msg.Subject,
		msg.Body,
		strings.Repeat("-", 79),
	)
}
