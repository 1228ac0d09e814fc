package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"firebase.google.com/go/v4/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu   sync.Mutex
	seen []uint
	fail map[uint]error
}

func (r *recordingNotifier) Notify(_ context.Context, to Recipient, _ Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err, ok := r.fail[to.MemberID]; ok {
		return err
	}
	r.seen = append(r.seen, to.MemberID)
	return nil
}

func recipients(n int) []Recipient {
	out := make([]Recipient, n)
	for i := range out {
		out[i] = Recipient{MemberID: uint(i + 1), Email: "m@example.com"}
	}
	return out
}

func TestDispatcherCountsOutcomes(t *testing.T) {
	notifier := &recordingNotifier{fail: map[uint]error{
		2: errors.New("boom"),
		3: ErrNoChannel,
	}}
	d := Dispatcher{Notifier: notifier, BatchSize: 2, Concurrency: 2}

	report, err := d.Dispatch(context.Background(), recipients(5), func(Recipient) Message {
		return Message{Title: "hi"}
	})
	require.NoError(t, err)
	assert.Equal(t, Report{Total: 5, Sent: 3, Skipped: 1, Failed: 1}, report)
	assert.ElementsMatch(t, []uint{1, 4, 5}, notifier.seen)
}

func TestDispatcherLimitsConcurrency(t *testing.T) {
	var running, peak atomic.Int64
	notifier := NotifierFunc(func(context.Context, Recipient, Message) error {
		current := running.Add(1)
		for {
			old := peak.Load()
			if current <= old || peak.CompareAndSwap(old, current) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	})

	d := Dispatcher{Notifier: notifier, BatchSize: 10, Concurrency: 3}
	report, err := d.Dispatch(context.Background(), recipients(10), func(Recipient) Message { return Message{} })
	require.NoError(t, err)
	assert.Equal(t, 10, report.Sent)
	assert.LessOrEqual(t, peak.Load(), int64(3))
}

func TestDispatcherStopsBetweenBatchesWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int64
	notifier := NotifierFunc(func(context.Context, Recipient, Message) error {
		if calls.Add(1) == 2 {
			cancel()
		}
		return nil
	})

	d := Dispatcher{Notifier: notifier, BatchSize: 2, Concurrency: 1, Delay: time.Hour}
	report, err := d.Dispatch(ctx, recipients(6), func(Recipient) Message { return Message{} })
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, report.Sent)
	assert.Equal(t, int64(2), calls.Load())
}

func TestFanoutPrefersPushAndFallsBackToEmail(t *testing.T) {
	var pushed, mailed []uint
	fanout := Fanout{
		Push: NotifierFunc(func(_ context.Context, to Recipient, _ Message) error {
			pushed = append(pushed, to.MemberID)
			return nil
		}),
		Email: NotifierFunc(func(_ context.Context, to Recipient, _ Message) error {
			mailed = append(mailed, to.MemberID)
			return nil
		}),
	}

	ctx := context.Background()
	require.NoError(t, fanout.Notify(ctx, Recipient{MemberID: 1, PushToken: "tok", Email: "a@example.com"}, Message{}))
	require.NoError(t, fanout.Notify(ctx, Recipient{MemberID: 2, Email: "b@example.com"}, Message{}))
	require.ErrorIs(t, fanout.Notify(ctx, Recipient{MemberID: 3}, Message{}), ErrNoChannel)

	assert.Equal(t, []uint{1}, pushed)
	assert.Equal(t, []uint{2}, mailed)
}

type fakeSender struct {
	got *messaging.Message
	err error
}

func (f *fakeSender) Send(_ context.Context, message *messaging.Message) (string, error) {
	f.got = message
	return "msg-1", f.err
}

func TestPushNotifier(t *testing.T) {
	disabled, err := NewPushNotifier(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, disabled.Enabled())
	assert.ErrorIs(t, disabled.Notify(context.Background(), Recipient{PushToken: "t"}, Message{}), ErrNoChannel)

	sender := &fakeSender{}
	push := &PushNotifier{client: sender}
	err = push.Notify(context.Background(), Recipient{MemberID: 7, PushToken: "token-7"}, Message{
		Title: "Keep your streak",
		Body:  "Log an activity today",
		Data:  map[string]string{"kind": "streak"},
	})
	require.NoError(t, err)
	require.NotNil(t, sender.got)
	assert.Equal(t, "token-7", sender.got.Token)
	assert.Equal(t, "Keep your streak", sender.got.Notification.Title)
	assert.Equal(t, "streak", sender.got.Data["kind"])

	sender.err = errors.New("unregistered")
	assert.Error(t, push.Notify(context.Background(), Recipient{MemberID: 7, PushToken: "token-7"}, Message{}))
}

func TestEmailNotifierComposesMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotBody []byte

	email := NewEmailNotifier(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", FromName: "教会"})
	email.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotBody = addr, from, to, msg
		return nil
	}

	err := email.Notify(context.Background(), Recipient{MemberID: 1, Email: "member@example.com"}, Message{Title: "Daily devotional", Body: "Psalm 23"})
	require.NoError(t, err)
	assert.Equal(t, "smtp.example.com:587", gotAddr)
	assert.Equal(t, "noreply@example.com", gotFrom)
	assert.Equal(t, []string{"member@example.com"}, gotTo)

	body := string(gotBody)
	assert.Contains(t, body, "Subject: Daily devotional\r\n")
	assert.Contains(t, body, "=?UTF-8?b?")
	assert.True(t, strings.HasSuffix(body, "\r\n\r\nPsalm 23"))

	unconfigured := NewEmailNotifier(SMTPConfig{})
	assert.ErrorIs(t, unconfigured.Notify(context.Background(), Recipient{Email: "x@example.com"}, Message{}), ErrNoChannel)
}
