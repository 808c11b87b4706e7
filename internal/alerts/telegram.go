package alerts

import (
	"fmt"
	"html"
	"math"
	"math/rand"
	"sort"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/jwolabs/vaultwatch/internal/engine"
	"github.com/jwolabs/vaultwatch/internal/observ"
)

// Options tunes the notifier's delivery behavior.
type Options struct {
	QueueSize      int
	MaxRetries     int
	RetryBackoff   time.Duration
	DisablePreview bool
}

func (o *Options) applyDefaults() {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryBackoff <= 0 {
		o.RetryBackoff = 2 * time.Second
	}
}

type outbound struct {
	text     string
	attempts int
}

// TelegramNotifier delivers alerts to a Telegram chat through a bounded
// queue and a single worker. Enqueueing never blocks the detection
// path; when the queue is full the alert is dropped and counted.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	opts   Options
	queue  chan outbound
	stop   chan struct{}
	done   chan struct{}
	log    *logrus.Entry
}

func NewTelegramNotifier(token string, chatID int64, opts Options) (*TelegramNotifier, error) {
	opts.applyDefaults()
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	n := &TelegramNotifier{
		bot:    bot,
		chatID: chatID,
		opts:   opts,
		queue:  make(chan outbound, opts.QueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		log:    logrus.WithField("component", "telegram"),
	}
	go n.worker()
	n.log.WithField("bot", bot.Self.UserName).Info("telegram notifier ready")
	return n, nil
}

func (n *TelegramNotifier) InstrumentAlert(a engine.InstrumentAlert) {
	n.enqueue(formatInstrumentAlert(a))
}

func (n *TelegramNotifier) ThemeAlert(a engine.ThemeAlert) {
	n.enqueue(formatThemeAlert(a))
}

// Send queues a plain informational message, such as the startup
// summary.
func (n *TelegramNotifier) Send(text string) {
	n.enqueue(text)
}

func (n *TelegramNotifier) enqueue(text string) {
	select {
	case n.queue <- outbound{text: text}:
		observ.SetGauge("telegram_queue_depth", nil, float64(len(n.queue)))
	default:
		observ.IncCounter("telegram_dropped_total", nil)
		n.log.Warn("telegram queue full, dropping message")
	}
}

// Close stops the worker after it drains in-flight sends.
func (n *TelegramNotifier) Close() {
	close(n.stop)
	<-n.done
}

func (n *TelegramNotifier) worker() {
	defer close(n.done)
	for {
		select {
		case <-n.stop:
			return
		case msg := <-n.queue:
			n.deliver(msg)
		}
	}
}

func (n *TelegramNotifier) deliver(msg outbound) {
	for {
		m := tgbotapi.NewMessage(n.chatID, msg.text)
		m.ParseMode = tgbotapi.ModeHTML
		m.DisableWebPagePreview = n.opts.DisablePreview

		_, err := n.bot.Send(m)
		if err == nil {
			observ.IncCounter("telegram_sent_total", nil)
			return
		}

		msg.attempts++
		observ.IncCounter("telegram_send_errors_total", nil)
		if msg.attempts >= n.opts.MaxRetries {
			n.log.WithError(err).Warn("telegram send failed, giving up")
			observ.IncCounter("telegram_dropped_total", nil)
			return
		}

		backoff := time.Duration(math.Pow(2, float64(msg.attempts-1))) * n.opts.RetryBackoff
		backoff += time.Duration(rand.Float64() * float64(backoff) * 0.1)
		n.log.WithError(err).WithField("attempt", msg.attempts).Debug("telegram send failed, retrying")
		select {
		case <-n.stop:
			return
		case <-time.After(backoff):
		}
	}
}

func formatInstrumentAlert(a engine.InstrumentAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🚨 <b>CONFLUENCE: %s</b>\n", html.EscapeString(a.Symbol))
	fmt.Fprintf(&b, "%d entities changed %s within %s\n\n",
		a.UniqueEntities, html.EscapeString(a.Symbol), formatWindow(a.Window))

	for _, ev := range byRecency(a.Events) {
		writeEventLine(&b, ev)
	}

	if a.TotalValueUSD.IsPositive() {
		fmt.Fprintf(&b, "\nCombined value: <b>%s</b>", formatUSD(a.TotalValueUSD))
	}
	return b.String()
}

func formatThemeAlert(a engine.ThemeAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s <b>THEME CONFLUENCE: %s</b>\n", a.Emoji, html.EscapeString(a.Theme))
	fmt.Fprintf(&b, "%d entities moved %s within %s\n\n",
		a.UniqueEntities, html.EscapeString(strings.Join(a.Symbols, ", ")), formatWindow(a.Window))

	events := make([]engine.ChangeEvent, 0, len(a.Events))
	for _, ev := range a.Events {
		events = append(events, ev.ChangeEvent)
	}
	for _, ev := range byRecency(events) {
		writeEventLine(&b, ev)
	}
	return b.String()
}

func writeEventLine(b *strings.Builder, ev engine.ChangeEvent) {
	fmt.Fprintf(b, "• <b>%s</b>: %s %s %s → %s",
		html.EscapeString(ev.EntityName),
		kindLabel(ev.Kind()),
		html.EscapeString(ev.Symbol),
		ev.OldSize.String(),
		ev.NewSize.String(),
	)
	if ev.NewValueUSD.IsPositive() {
		fmt.Fprintf(b, " (%s)", formatUSD(ev.NewValueUSD))
	} else if ev.OldValueUSD.IsPositive() {
		fmt.Fprintf(b, " (was %s)", formatUSD(ev.OldValueUSD))
	}
	if ev.AccountValue.IsPositive() {
		fmt.Fprintf(b, " [TVL %s]", formatUSD(ev.AccountValue))
	}
	b.WriteString("\n")
}

func kindLabel(kind engine.ChangeKind) string {
	switch kind {
	case engine.ChangeOpen:
		return "🟢 OPEN"
	case engine.ChangeClose:
		return "🔴 CLOSE"
	case engine.ChangeIncrease:
		return "📈 INCREASE"
	case engine.ChangeDecrease:
		return "📉 DECREASE"
	default:
		return string(kind)
	}
}

// byRecency orders participants newest first so the trigger leads.
func byRecency(events []engine.ChangeEvent) []engine.ChangeEvent {
	out := make([]engine.ChangeEvent, len(events))
	copy(out, events)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}

func formatWindow(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return d.String()
}

var usdUnits = []struct {
	floor  decimal.Decimal
	suffix string
}{
	{decimal.NewFromInt(1_000_000_000), "B"},
	{decimal.NewFromInt(1_000_000), "M"},
	{decimal.NewFromInt(1_000), "K"},
}

func formatUSD(v decimal.Decimal) string {
	abs := v.Abs()
	for _, u := range usdUnits {
		if abs.GreaterThanOrEqual(u.floor) {
			return "$" + v.Div(u.floor).StringFixed(2) + u.suffix
		}
	}
	return "$" + v.StringFixed(2)
}
