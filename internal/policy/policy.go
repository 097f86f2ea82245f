// Package policy decides whether a public space post is allowed.
//
// The decision is a pure function of three inputs: the author's follower count, how
// many public space posts they have made today, and whether the posting window is
// open. Callers gather the inputs from the ledgers; nothing here touches storage.
package policy

// Reason explains a denial.
type Reason string

const (
	RateLimitReached  Reason = "RATE_LIMIT_REACHED"
	OutsideTimeWindow Reason = "OUTSIDE_TIME_WINDOW"
)

// Follower-count tiers.
const (
	TierTwoFollowers = 2
	TierUnlimited    = 10
)

// Unlimited marks a tier with no daily cap.
const Unlimited = -1

// Verdict is the outcome of a decision. Reason is empty when Allowed.
type Verdict struct {
	Allowed bool   `json:"allowed"`
	Reason  Reason `json:"reason,omitempty"`
}

// Snapshot is everything a decision needs.
type Snapshot struct {
	Followers  int
	PostsToday int
	InWindow   bool
}

// Rule describes the tier a follower count falls into.
type Rule struct {
	// DailyLimit is the number of posts per day, or Unlimited.
	DailyLimit int
	// WindowOnly restricts posting to the posting window.
	WindowOnly bool
}

// RuleFor returns the tier for a follower count.
//
//	0        one post per day, inside the window only
//	1        one post per day, any time
//	2..9     two posts per day
//	10+      unlimited
//
// Exactly one follower gets the same single daily post as the "1 post" limit shown
// by the stats endpoint, without the window restriction that applies to zero.
func RuleFor(followers int) Rule {
	switch {
	case followers >= TierUnlimited:
		return Rule{DailyLimit: Unlimited}
	case followers >= TierTwoFollowers:
		return Rule{DailyLimit: 2}
	case followers == 1:
		return Rule{DailyLimit: 1}
	default:
		return Rule{DailyLimit: 1, WindowOnly: true}
	}
}

// Decide applies the rule for s.Followers. The window is checked before the count, so
// a zero-follower user outside the window is told about the window even if they have
// already posted today.
func Decide(s Snapshot) Verdict {
	rule := RuleFor(s.Followers)
	if rule.WindowOnly && !s.InWindow {
		return Verdict{Reason: OutsideTimeWindow}
	}
	if rule.DailyLimit != Unlimited && s.PostsToday >= rule.DailyLimit {
		return Verdict{Reason: RateLimitReached}
	}
	return Verdict{Allowed: true}
}

// DailyLimitLabel is the human description of the daily cap for a follower count.
func DailyLimitLabel(followers int) string {
	switch RuleFor(followers).DailyLimit {
	case Unlimited:
		return "Unlimited"
	case 2:
		return "2 posts"
	default:
		return "1 post"
	}
}

// TimeWindowLabel describes the posting window.
const TimeWindowLabel = "10:00 AM - 10:30 AM IST (if no followers)"

// Message is the user-facing text for a denial, as {error, reason}.
func (r Reason) Message() (string, string) {
	switch r {
	case OutsideTimeWindow:
		return "Posting not allowed at this time",
			"You can only post between 10:00 AM - 10:30 AM IST if nobody follows you"
	case RateLimitReached:
		return "Posting limit reached for today",
			"You have already posted your daily limit"
	default:
		return "", ""
	}
}
