package broker

// BizError is the payload of a biz_error event. A rejected connection
// receives exactly one before it is closed.
type BizError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *BizError) Error() string {
	return e.Code + ": " + e.Message
}

// Codes and messages are part of the client contract.
var (
	ErrParamMissing = &BizError{Code: "Client.PARAM_MISSING", Message: "缺少必要参数"}
	ErrBadConnect   = &BizError{Code: "Client.BAD_CONNECT", Message: "非法请求"}
	ErrNoScreen     = &BizError{Code: "Client.NO_SCREEN", Message: "大屏幕程序未连接, 请先启动大屏幕"}
	ErrServerBusy   = &BizError{Code: "Server.BUSY", Message: "服务器正忙, 请稍后再试"}
	ErrServerError  = &BizError{Code: "Server.ERROR", Message: "服务器内部错误, 请稍后再试"}
)
