package protocol

// Message types. The closed set the dispatcher routes on; any type not
// in this table is itself a validation error (INVALID_REQUEST).
const (
	MsgRegister       uint16 = 0x0001
	MsgRegisterOK     uint16 = 0x0002
	MsgLogin          uint16 = 0x0003
	MsgLoginOK        uint16 = 0x0004
	MsgLogout         uint16 = 0x0005

	MsgMarketList      uint16 = 0x0010
	MsgMarketListOK    uint16 = 0x0011
	MsgMarketBuy       uint16 = 0x0012
	MsgMarketSell      uint16 = 0x0013
	MsgMarketDelist    uint16 = 0x0014
	MsgMarketSearch    uint16 = 0x0015

	MsgTradeSend       uint16 = 0x0020
	MsgTradeNotify     uint16 = 0x0021
	MsgTradeAccept     uint16 = 0x0022
	MsgTradeDecline    uint16 = 0x0023
	MsgTradeCancel     uint16 = 0x0024
	MsgTradeCompleted  uint16 = 0x0025
	MsgTradeList       uint16 = 0x0026
	MsgTradeListOK     uint16 = 0x0027

	MsgInventory       uint16 = 0x0030
	MsgInventoryOK     uint16 = 0x0031
	MsgProfile         uint16 = 0x0032
	MsgProfileOK       uint16 = 0x0033
	MsgSkinDetail      uint16 = 0x0034
	MsgSkinDetailOK    uint16 = 0x0035
	MsgUserSearch      uint16 = 0x0036
	MsgUserSearchOK    uint16 = 0x0037

	MsgUnbox           uint16 = 0x0040
	MsgUnboxOK         uint16 = 0x0041
	MsgCaseList        uint16 = 0x0042
	MsgCaseListOK      uint16 = 0x0043

	MsgChat            uint16 = 0x0060

	MsgQuestClaim         uint16 = 0x0070
	MsgQuestClaimOK       uint16 = 0x0071
	MsgAchievementClaim   uint16 = 0x0072
	MsgAchievementClaimOK uint16 = 0x0073
	MsgDailyRewardClaim   uint16 = 0x0074
	MsgDailyRewardClaimOK uint16 = 0x0075
	MsgReport             uint16 = 0x0076
	MsgReportOK           uint16 = 0x0077

	MsgHeartbeat       uint16 = 0x0090

	MsgError           uint16 = 0x00FF
)

// ErrorCode is the closed set of domain error codes an ERROR frame may
// carry. Never a raw Go error string — the dispatcher maps every
// store/domain error onto one of these before writing the wire frame.
type ErrorCode uint32

const (
	ErrSuccess            ErrorCode = 0
	ErrInvalidCredentials ErrorCode = 1
	ErrUserExists         ErrorCode = 2
	ErrInsufficientFunds  ErrorCode = 3
	ErrItemNotFound       ErrorCode = 4
	ErrPermissionDenied   ErrorCode = 5
	ErrTradeExpired       ErrorCode = 6
	ErrInvalidTrade       ErrorCode = 7
	ErrSessionExpired     ErrorCode = 8
	ErrServerFull         ErrorCode = 9
	ErrBanned             ErrorCode = 10
	ErrTradeLocked        ErrorCode = 11
	ErrInvalidRequest     ErrorCode = 12
	ErrDatabaseError      ErrorCode = 13
)

// ErrorPayload is the body of a 0x00FF ERROR frame.
type ErrorPayload struct {
	OriginatingMsgType uint16
	Code               ErrorCode
}
