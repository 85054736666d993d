package helper

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
	"time"

	chelper "crash-server/common/helper"

	beegocontext "github.com/beego/beego/v2/server/web/context"
)

// IsJSONContentType 判断是否为 JSON 请求
func IsJSONContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.Contains(ct, "json")
}

// 金额格式校验：非负，最多两位小数（预编译正则）
var moneyRe = regexp.MustCompile(`^(?:0|[1-9]\d*)(?:\.\d{1,2})?$`)

// IsMoneyFormat 判断金额格式
func IsMoneyFormat(s string) bool {
	return moneyRe.MatchString(strings.TrimSpace(s))
}

// 默认输入保护参数
const (
	defaultJSONMaxBytes int64         = 1 << 20 // 1MB
	defaultParseTimeout time.Duration = 1 * time.Second
)

type deadlineReader struct {
	r        io.Reader
	deadline time.Time
}

func (dr *deadlineReader) Read(p []byte) (int, error) {
	if time.Now().After(dr.deadline) {
		return 0, fmt.Errorf("read timeout")
	}
	return dr.r.Read(p)
}

// jsonBodyReader 在 JSON 分支下为请求体增加大小限制与解析超时保护
func jsonBodyReader(ctx *beegocontext.Context) io.Reader {
	lr := io.LimitReader(ctx.Request.Body, defaultJSONMaxBytes)
	return &deadlineReader{r: lr, deadline: time.Now().Add(defaultParseTimeout)}
}

// GetTraceID 统一提取 trace_id：优先从中间件注入的数据取，其次从常见请求头降级
func GetTraceID(ctx *beegocontext.Context) string {
	if v := ctx.Input.GetData("trace_id"); v != nil {
		return fmt.Sprint(v)
	}
	if h := strings.TrimSpace(ctx.Input.Header("X-Trace-ID")); h != "" {
		return h
	}
	if h := strings.TrimSpace(ctx.Input.Header("Trace-Id")); h != "" {
		return h
	}
	return ""
}

// parseByContentType 按 Content-Type 选择解析函数，减少重复 if/else 分支
func parseByContentType[T any](ctx *beegocontext.Context,
	jsonParser func(io.Reader) (T, bool, string),
	formParser func(*beegocontext.Context) (T, bool, string),
) (T, bool, string) {
	ct := ctx.Input.Header("Content-Type")
	if IsJSONContentType(ct) {
		return jsonParser(jsonBodyReader(ctx))
	}
	return formParser(ctx)
}

// BetParsed 为解析后的投注入参（与控制器/服务层解耦）
// 用户身份不在请求体内，由身份中间件从网关注入的请求头取得
type BetParsed struct {
	RoundID        string `json:"round_id"`
	Amount         string `json:"amount"`
	Mode           int8   `json:"mode"`         // 0=真实资金 1=试玩
	AutoCashout    string `json:"auto_cashout"` // 可选，自动逃跑倍数
	IdempotencyKey string `json:"idempotency_key"`
}

// ParseBetFromJSON 解析 JSON 到 BetParsed。失败返回 false 与错误消息。
func ParseBetFromJSON(r io.Reader) (BetParsed, bool, string) {
	var out BetParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return BetParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

// ParseBetFromForm 从表单读取字段并做强校验，返回 BetParsed。失败返回 false 与可读错误信息。
func ParseBetFromForm(ctx *beegocontext.Context) (BetParsed, bool, string) {
	var out BetParsed
	out.RoundID = strings.TrimSpace(ctx.Input.Query("round_id"))
	if out.RoundID == "" {
		return BetParsed{}, false, "round_id required"
	}

	out.Amount = strings.TrimSpace(ctx.Input.Query("amount"))
	if out.Amount == "" || !IsMoneyFormat(out.Amount) {
		return BetParsed{}, false, "amount must be numeric with up to 2 decimals"
	}

	// mode: 可选，默认 0（真实资金）；如传入，需为 0|1
	mStr := strings.TrimSpace(ctx.Input.Query("mode"))
	if mStr != "" {
		mn, err := strconv.Atoi(mStr)
		if err != nil || (mn != 0 && mn != 1) {
			return BetParsed{}, false, "mode must be 0|1"
		}
		out.Mode = int8(mn)
	}

	out.AutoCashout = strings.TrimSpace(ctx.Input.Query("auto_cashout"))

	out.IdempotencyKey = strings.TrimSpace(ctx.Input.Query("idempotency_key"))
	if out.IdempotencyKey == "" {
		return BetParsed{}, false, "idempotency_key required"
	}

	return out, true, ""
}

// ValidateBet 对通用字段做二次校验（适用于 JSON 与 FORM）。失败返回 false 与错误消息。
func ValidateBet(in *BetParsed) (bool, string) {
	if in.RoundID == "" || strings.TrimSpace(in.Amount) == "" || in.IdempotencyKey == "" {
		return false, "missing or invalid fields"
	}
	// 额外长度保护，避免异常超长输入
	if len(in.RoundID) > 64 || len(in.IdempotencyKey) > 64 || len(in.Amount) > 32 || len(in.AutoCashout) > 16 {
		return false, "invalid request"
	}
	if in.Mode != 0 && in.Mode != 1 {
		return false, "mode must be 0|1"
	}
	// 金额校验
	if !IsMoneyFormat(in.Amount) {
		return false, "amount must be numeric with up to 2 decimals"
	}
	// 自动逃跑倍数与金额同构：非负、最多两位小数；下限由服务层校验
	if in.AutoCashout != "" && !IsMoneyFormat(in.AutoCashout) {
		return false, "auto_cashout must be numeric with up to 2 decimals"
	}
	return true, ""
}

// ParseAndValidateBet 按 Content-Type 自动解析并做统一校验
func ParseAndValidateBet(ctx *beegocontext.Context) (BetParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseBetFromJSON, ParseBetFromForm)
	if !ok {
		return BetParsed{}, false, msg
	}
	if ok, msg := ValidateBet(&out); !ok {
		return BetParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Cashout helpers --------

// CashoutParsed 为解析后的逃跑入参；倍数由服务端按当前行情决定，客户端不可指定
type CashoutParsed struct {
	BillNo string `json:"bill_no"`
}

func ParseCashoutFromJSON(r io.Reader) (CashoutParsed, bool, string) {
	var out CashoutParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return CashoutParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseCashoutFromForm(ctx *beegocontext.Context) (CashoutParsed, bool, string) {
	var out CashoutParsed
	out.BillNo = strings.TrimSpace(ctx.Input.Query("bill_no"))
	if out.BillNo == "" {
		return CashoutParsed{}, false, "bill_no required"
	}
	return out, true, ""
}

func ValidateCashout(in *CashoutParsed) (bool, string) {
	in.BillNo = strings.TrimSpace(in.BillNo)
	if in.BillNo == "" {
		return false, "bill_no required"
	}
	if len(in.BillNo) > 64 {
		return false, "invalid request"
	}
	return true, ""
}

// ParseAndValidateCashout 按 Content-Type 自动解析并校验
func ParseAndValidateCashout(ctx *beegocontext.Context) (CashoutParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseCashoutFromJSON, ParseCashoutFromForm)
	if !ok {
		return CashoutParsed{}, false, msg
	}
	if ok, msg := ValidateCashout(&out); !ok {
		return CashoutParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Recharge helpers --------

// RechargeParsed 为解析后的充值下单入参
type RechargeParsed struct {
	Amount  string `json:"amount"`
	Channel string `json:"channel"` // 可选，支付渠道标识
}

func ParseRechargeFromJSON(r io.Reader) (RechargeParsed, bool, string) {
	var out RechargeParsed
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return RechargeParsed{}, false, "invalid json body"
	}
	return out, true, ""
}

func ParseRechargeFromForm(ctx *beegocontext.Context) (RechargeParsed, bool, string) {
	var out RechargeParsed
	out.Amount = strings.TrimSpace(ctx.Input.Query("amount"))
	if out.Amount == "" || !IsMoneyFormat(out.Amount) {
		return RechargeParsed{}, false, "amount must be numeric with up to 2 decimals"
	}
	out.Channel = strings.TrimSpace(ctx.Input.Query("channel"))
	return out, true, ""
}

func ValidateRecharge(in *RechargeParsed) (bool, string) {
	in.Amount = strings.TrimSpace(in.Amount)
	if in.Amount == "" || !IsMoneyFormat(in.Amount) {
		return false, "amount must be numeric with up to 2 decimals"
	}
	if len(in.Amount) > 32 || len(in.Channel) > 32 {
		return false, "invalid request"
	}
	return true, ""
}

// ParseAndValidateRecharge 按 Content-Type 自动解析并校验
func ParseAndValidateRecharge(ctx *beegocontext.Context) (RechargeParsed, bool, string) {
	out, ok, msg := parseByContentType(ctx, ParseRechargeFromJSON, ParseRechargeFromForm)
	if !ok {
		return RechargeParsed{}, false, msg
	}
	if ok, msg := ValidateRecharge(&out); !ok {
		return RechargeParsed{}, false, msg
	}
	return out, true, ""
}

// -------- Recharge callback helpers --------

// RechargeCallbackParsed 支付网关异步回调报文（验签使用原始字节，解析在验签之后）
type RechargeCallbackParsed struct {
	OrderNo   string `json:"order_no"`
	TradeNo   string `json:"trade_no"`
	Amount    string `json:"amount"`
	Status    string `json:"status"`      // success | fail
	PayTimeMs int64  `json:"pay_time_ms"` // 可选，网关支付时间（Unix 毫秒）
	PayTime   string `json:"pay_time"`    // 可选，旧版网关的字符串时间，pay_time_ms 缺省时生效
}

// ParseRechargeCallback 从原始回调字节解析业务字段。失败返回 false 与错误消息。
func ParseRechargeCallback(body []byte) (RechargeCallbackParsed, bool, string) {
	var out RechargeCallbackParsed
	if err := json.Unmarshal(body, &out); err != nil {
		return RechargeCallbackParsed{}, false, "invalid callback body"
	}
	out.OrderNo = strings.TrimSpace(out.OrderNo)
	out.Status = strings.ToLower(strings.TrimSpace(out.Status))
	if out.OrderNo == "" || len(out.OrderNo) > 64 {
		return RechargeCallbackParsed{}, false, "order_no required"
	}
	if out.Status != "success" && out.Status != "fail" {
		return RechargeCallbackParsed{}, false, "status must be success|fail"
	}
	if out.Status == "success" && !IsMoneyFormat(out.Amount) {
		return RechargeCallbackParsed{}, false, "amount must be numeric with up to 2 decimals"
	}
	if out.PayTimeMs == 0 && strings.TrimSpace(out.PayTime) != "" {
		out.PayTimeMs = chelper.PayTimeToMs(out.PayTime)
	}
	return out, true, ""
}
