package bot

import "github.com/lojf/storebot/internal/conversation"

// User flows.
const (
	flowRegistration conversation.Flow = "registration"
	flowPurchase     conversation.Flow = "purchase"
	flowDiscount     conversation.Flow = "discount"
	flowTransfer     conversation.Flow = "transfer"
	flowSupport      conversation.Flow = "support"
	flowGuide        conversation.Flow = "guide"
)

// Admin flows. Everything but flowAdmin is entered from the admin menu and
// returns to it.
const (
	flowAdmin          conversation.Flow = "admin"
	flowAdminCredit    conversation.Flow = "admin_credit"
	flowAdminPrice     conversation.Flow = "admin_price"
	flowAdminContent   conversation.Flow = "admin_content"
	flowAdminCodes     conversation.Flow = "admin_codes"
	flowAdminBroadcast conversation.Flow = "admin_broadcast"
	flowAdminSupport   conversation.Flow = "admin_support"
)

const (
	stRequestingContact  conversation.State = "RequestingContact"
	stRequestingFullName conversation.State = "RequestingFullName"
	stSelectingOS        conversation.State = "SelectingOS"

	stSelectingAccountType conversation.State = "SelectingPurchaseAccountType"
	stSelectingDevice      conversation.State = "SelectingDevice"
	stSelectingService     conversation.State = "SelectingService"

	stEnteringDiscountCode conversation.State = "EnteringDiscountCode"

	stTransferTarget conversation.State = "TransferAwaitingTargetUser"
	stTransferAmount conversation.State = "TransferAwaitingAmount"

	stEnteringSupportMessage conversation.State = "EnteringSupportMessage"

	stSelectingGuideDevice conversation.State = "SelectingGuideDevice"
)

const (
	stAdminMenu conversation.State = "AdminMenu"

	stAdminCreditTarget conversation.State = "AdminCreditTarget"
	stAdminCreditAmount conversation.State = "AdminCreditAmount"

	stAdminPriceSelect conversation.State = "AdminPriceSelect"
	stAdminPriceValue  conversation.State = "AdminPriceValue"

	stAdminContentSelect conversation.State = "AdminContentSelect"
	stAdminContentKind   conversation.State = "AdminContentKind"
	stAdminContentText   conversation.State = "AdminContentText"
	stAdminContentFile   conversation.State = "AdminContentFile"

	stAdminCodesMenu  conversation.State = "AdminCodesMenu"
	stAdminCodeAdd    conversation.State = "AdminCodeAdd"
	stAdminCodeDelete conversation.State = "AdminCodeDelete"

	stAdminBroadcastText    conversation.State = "AdminBroadcastText"
	stAdminBroadcastConfirm conversation.State = "AdminBroadcastConfirm"

	stAdminSupportSelect conversation.State = "AdminSupportSelect"
	stAdminSupportReply  conversation.State = "AdminSupportReply"
)

// Scratch holds what the active flow collected so far. It is reset whenever a
// flow is entered, so fields are shared between flows by name only.
type Scratch struct {
	Phone       string `json:"phone,omitempty"`
	FullName    string `json:"full_name,omitempty"`
	AccountType string `json:"account_type,omitempty"`
	Device      string `json:"device,omitempty"`
	TargetID    int64  `json:"target_id,omitempty"`
	Key         string `json:"key,omitempty"`
	Text        string `json:"text,omitempty"`
	MessageID   uint   `json:"message_id,omitempty"`
}

type (
	session = conversation.Session[Scratch]
	event   = conversation.Event
	step    = conversation.Step
)

// Reply keyboard labels.
const (
	lblBuy       = "🛒 Buy account"
	lblBalance   = "💰 Balance"
	lblDiscount  = "🎁 Discount code"
	lblTransfer  = "🔁 Transfer credit"
	lblRequests  = "📦 My requests"
	lblStatus    = "👤 My account"
	lblSupport   = "💬 Support"
	lblGuide     = "📲 Apps"
	lblAdmin     = "🛠 Admin panel"
	lblCancel    = "❌ Cancel"
	lblBack      = "⬅️ Back"
	lblShare     = "📱 Share my phone"
	lblConfirm   = "✅ Send"
	lblAdd       = "➕ Add code"
	lblDelete    = "🗑 Delete code"
	lblTextKind  = "📝 Text"
	lblFileKind  = "📎 File"
	lblRemove    = "🗑 Remove content"
	lblCredit    = "💳 Adjust credit"
	lblPrices    = "🏷 Prices"
	lblContent   = "📂 Content"
	lblCodes     = "🎟 Discount codes"
	lblBroadcast = "📣 Broadcast"
	lblInbox     = "📨 Support inbox"
	lblPendUsers = "🧾 Pending users"
	lblPendReqs  = "⏳ Pending requests"
	lblStats     = "📊 Statistics"
	lblExit      = "🚪 Exit admin"
)

// Inline callback prefixes used on operator notifications.
const (
	cbUserApprove  = "usr:ok:"
	cbUserReject   = "usr:no:"
	cbReqCharge    = "req:ok:"
	cbReqFree      = "req:free:"
	cbReqReject    = "req:no:"
	cbSupportReply = "sup:"
)
