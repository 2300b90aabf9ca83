package telegram

// Notification texts sent by the referral ledger. MsgReferralProgress takes
// the current count and the required threshold.
const (
	MsgReferralRegistered = "✅ Вы были зарегистрированы как реферал!"
	MsgAccessGranted      = "🎉 Поздравляю! Вы пригласили 2-х друзей и теперь можете пользоваться ботом!"
	MsgReferralProgress   = "✅ %d/%d рефералов приглашены!"
)
