package screening

import "fmt"

const (
	msgChallenge       = "Please enter your four digit pin, or say your verbal code."
	msgRetry           = "Incorrect code. Please try again with your four digit pin, or say your verbal code."
	msgNoInput         = "No input received. This call will now end."
	msgConnecting      = "Connecting your call now."
	msgNotVerified     = "Sorry, you could not be verified. Please leave a message after the tone."
	msgVerifiedMessage = "Thank you for verification. Please leave your message after the tone."
	msgLeaveMessage    = "Please leave your message after the tone."
	msgUnassigned      = "This CallBunker number is not currently assigned. Please set up call forwarding or contact support."
	msgInactive        = "This account is currently inactive. Please contact support."
	msgForwardLoop     = "This CallBunker number is forwarding to itself. Please check the forwarding settings. Goodbye."
	msgPassThrough     = "This is your verification call. Connecting now."
	msgUnavailable     = "Sorry, we cannot take your call right now. Goodbye."
	msgVoicemailThanks = "Thank you for your message. Goodbye."
	msgBlockedFallback = "Sorry, this number is temporarily blocked due to repeated failed attempts. Goodbye."
)

// VoicemailThanks is spoken after a recording completes.
const VoicemailThanks = msgVoicemailThanks

// Unavailable is spoken when a webhook cannot be handled at all.
const Unavailable = msgUnavailable

func challengePrompt(ownerLabel string) string {
	if ownerLabel == "" {
		return msgChallenge
	}
	return fmt.Sprintf("Hello, you've reached %s's call screening service. %s", ownerLabel, msgChallenge)
}

func blockedPrompt(minutes int) string {
	if minutes <= 0 {
		return msgBlockedFallback
	}
	unit := "minutes"
	if minutes == 1 {
		unit = "minute"
	}
	return fmt.Sprintf("Sorry, this number is temporarily blocked for %d more %s due to repeated failed attempts. Goodbye.", minutes, unit)
}
