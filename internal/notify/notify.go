// Package notify formats heater failure alerts and delivers them to an
// operator. Delivery is best-effort: the control loop never waits for it.
package notify

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/heater-controller/internal/logic"
)

// Alert is one formatted notification.
type Alert struct {
	ID       string
	Category logic.FailureCategory
	Time     time.Time
	Subject  string
	Body     string
}

// Notifier delivers an alert. The returned error is advisory only.
type Notifier interface {
	Notify(ctx context.Context, a Alert) error
}

var headlines = map[logic.FailureCategory]string{
	logic.SingleElementFailure: "one heating element has failed",
	logic.TotalFailure:         "both heating elements have failed",
}

// Format builds the alert for category cat fired by outcome o.
func Format(cat logic.FailureCategory, o logic.Outcome, device string) Alert {
	headline, ok := headlines[cat]
	if !ok {
		headline = strings.ToLower(strings.ReplaceAll(string(cat), "_", " "))
	}
	if device == "" {
		device = "heater"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s.\n\n", device, headline)
	fmt.Fprintf(&b, "Time:        %s\n", o.Time.Format(time.RFC1123))
	fmt.Fprintf(&b, "Health:      %s\n", o.Health)
	fmt.Fprintf(&b, "Relay:       %s\n", o.Relay)
	fmt.Fprintf(&b, "Temperature: %s\n", celsius(o.Temperature))
	fmt.Fprintf(&b, "Target:      %s\n", celsius(o.Target))
	if !math.IsNaN(o.Current) {
		fmt.Fprintf(&b, "Current:     %.2f A\n", o.Current)
	}
	b.WriteString("\nThe heater stays under thermostat control. Further alerts for this fault are rate limited.\n")

	return Alert{
		ID:       uuid.NewString(),
		Category: cat,
		Time:     o.Time,
		Subject:  fmt.Sprintf("[%s] %s", device, upperFirst(headline)),
		Body:     b.String(),
	}
}

func celsius(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "unavailable"
	}
	return fmt.Sprintf("%.1f °C", logic.Round1(v))
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
