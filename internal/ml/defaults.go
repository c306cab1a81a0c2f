package ml

import (
	"time"

	"github.com/mikey/antispam/internal/core"
)

// DefaultSamples returns the built-in bootstrap training set used when no
// model artifact exists or the stored one cannot be loaded. Five obvious
// spam messages and five obvious legitimate ones, enough to seed a model
// that user feedback then refines.
func DefaultSamples() []core.TrainingSample {
	now := time.Now()

	mk := func(sender, subject, body string, spam bool) core.TrainingSample {
		return core.TrainingSample{
			Email:  core.NewEmail(sender, subject, body, nil, now),
			IsSpam: spam,
			Source: core.SampleSourceDefault,
		}
	}

	return []core.TrainingSample{
		mk("winner@lottery-scam.tk",
			"CONGRATULATIONS! You WON $1,000,000!!!",
			"URGENT! Claim your FREE prize NOW! Click here immediately to receive your winnings. Act now, this offer expires today! 100% guaranteed, no risk!",
			true),
		mk("noreply@suspicious.click",
			"Your account will be suspended - verify now",
			"Your password expires today. Confirm your identity and verify your account immediately or access will be suspended. Click the link to update your security information.",
			true),
		mk("prince@nigeria.com",
			"Confidential business proposal",
			"Dear friend, I am a prince with a million dollar inheritance. I need your help to transfer funds via wire transfer. Send your bank account details and western union information.",
			true),
		mk("pharmacy123@cheap-meds.tk",
			"Cheap viagra and weight loss pills - limited time",
			"Buy viagra, cialis and miracle weight loss pills at the lowest prices! No prescription needed. Order now for amazing deals, satisfaction guaranteed!",
			true),
		mk("marketing@get-rich-quick.ml",
			"Make money from home - passive income secrets",
			"Work from home and earn extra cash with this easy money investment opportunity! Get rich quick with guaranteed passive income. Click here now!!!",
			true),
		mk("support@github.com",
			"Your pull request has been merged",
			"Your pull request #142 was merged into main. The CI pipeline completed successfully. You can review the merge commit in the repository history.",
			false),
		mk("notifications@linkedin.com",
			"You have a new connection request",
			"Jane Smith would like to connect with you on LinkedIn. View their profile to accept or ignore the request.",
			false),
		mk("receipts@amazon.com",
			"Your order has shipped",
			"Your order of 'USB-C cable, 2m' has shipped and is expected to arrive on Thursday. Track your package using the link in your orders page.",
			false),
		mk("newsletter@company.com",
			"Engineering weekly: release notes and roadmap",
			"This week we shipped the new reporting dashboard and fixed several issues in the import pipeline. Read the full release notes and the updated roadmap on the internal wiki.",
			false),
		mk("team@calendar-app.com",
			"Reminder: design review tomorrow at 10:00",
			"This is a reminder for your scheduled meeting 'Design review' tomorrow at 10:00 in room 3B. The agenda and documents are attached to the event.",
			false),
	}
}
