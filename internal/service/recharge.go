package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"crash-server/common"
	chelper "crash-server/common/helper"
	"crash-server/internal/config"
	"crash-server/internal/model"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	decimal "github.com/shopspring/decimal"
)

// 充值下单：创建本地订单后调用支付网关取收银台地址
// 网关回调的入账流程见 internal/settlement

const gatewayTimeout = 5 * time.Second

type CreateRechargeInput struct {
	ExternalID string
	Nickname   string
	Amount     string
	Channel    string
	TraceID    string
}

type CreateRechargeOutput struct {
	OrderNo string
	PayURL  string // 网关收银台地址；网关未配置时为空
}

type RechargeService interface {
	CreateRechargeOrder(ctx context.Context, in CreateRechargeInput) (*CreateRechargeOutput, error)
	// QueryRechargeOrder 按外部用户维度查询订单（轮询支付结果用）
	QueryRechargeOrder(ctx context.Context, externalID, orderNo string) (*model.RechargeOrder, error)
}

type rechargeService struct {
	db *sqlx.DB
}

func NewRechargeService(db *sqlx.DB) RechargeService {
	return &rechargeService{db: db}
}

var (
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrOrderNotFound 归属不符按不存在处理，避免泄露他人订单
	ErrOrderNotFound = errors.New("recharge order not found")
	// ErrDailyCapExceeded 日限额：下单前快速校验、下单事务内复核、入账事务内再复核
	ErrDailyCapExceeded = errors.New("daily recharge cap exceeded")
)

// gatewayCreateResp 网关下单响应
type gatewayCreateResp struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		PayURL  string `json:"pay_url"`
		TradeNo string `json:"trade_no"`
	} `json:"data"`
}

// CreateRechargeOrder 创建充值订单
func (s *rechargeService) CreateRechargeOrder(ctx context.Context, in CreateRechargeInput) (*CreateRechargeOutput, error) {

	amtDec, err := decimal.NewFromString(strings.TrimSpace(in.Amount))
	if err != nil {
		fmt.Printf("[Recharge]  无效的充值金额格式: amount=%s, error=%v, trace_id=%s\n",
			in.Amount, err, in.TraceID)
		return nil, errors.New("invalid recharge amount format")
	}
	if amtDec.LessThanOrEqual(decimal.Zero) {
		return nil, errors.New("recharge amount must be positive")
	}
	if !chelper.IsMoneyScale(amtDec) {
		return nil, errors.New("recharge amount precision exceeds 2 decimal places")
	}

	minAmount := decimal.NewFromInt(config.GetThreshold("recharge_min_amount", 1))
	if amtDec.LessThan(minAmount) {
		return nil, fmt.Errorf("recharge amount below minimum limit: %s", minAmount.String())
	}
	maxAmount := decimal.NewFromInt(config.GetThreshold("recharge_max_amount", 50000))
	if amtDec.GreaterThan(maxAmount) {
		return nil, fmt.Errorf("recharge amount exceeds maximum limit: %s", maxAmount.String())
	}

	user, err := model.GetOrCreateUser(ctx, s.db, in.ExternalID, in.Nickname)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create user: %w", err)
	}

	// 日限额快速校验（无锁），事务内还会复核
	dayCap := decimal.NewFromInt(config.GetThreshold("daily_recharge_cap", 50000))
	dayStart, dayEnd := common.GetTodayRangeMs(time.Now())
	todaySum, err := model.SumCountedRechargeInRange(ctx, s.db, user.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if todaySum.Add(amtDec).GreaterThan(dayCap) {
		fmt.Printf("[Recharge]  超出当日充值限额，拒绝下单: user_id=%d, today_sum=%s, amount=%s, cap=%s, trace_id=%s\n",
			user.ID, todaySum.String(), amtDec.String(), dayCap.String(), in.TraceID)
		return nil, ErrDailyCapExceeded
	}

	orderNo := generateBillNo("RC", user.ID)
	channel := strings.TrimSpace(in.Channel)
	if channel == "" {
		channel = "default"
	}

	order := &model.RechargeOrder{
		OrderNo:     orderNo,
		UserID:      user.ID,
		Amount:      amtDec,
		BonusAmount: decimal.Zero,
		Channel:     channel,
		TraceID:     in.TraceID,
	}

	dbCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		dbCtx = c
		defer cancel()
	}

	// 下单事务：用户行锁串行化同一用户的并发下单，锁内复核日限额后再落单。
	// 在途订单同样占用额度，两笔并发请求不可能同时越过上限
	tx, err := s.db.BeginTxx(dbCtx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := model.GetUserByIDForUpdate(dbCtx, tx, user.ID); err != nil {
		return nil, err
	}
	reserved, err := model.SumCountedRechargeInRange(dbCtx, tx, user.ID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	if reserved.Add(amtDec).GreaterThan(dayCap) {
		fmt.Printf("[Recharge]  事务内复核超出当日充值限额: user_id=%d, reserved=%s, amount=%s, cap=%s, trace_id=%s\n",
			user.ID, reserved.String(), amtDec.String(), dayCap.String(), in.TraceID)
		return nil, ErrDailyCapExceeded
	}
	if err := order.Insert(dbCtx, tx); err != nil {
		fmt.Printf("[Recharge]  创建充值订单失败: error=%v, external_id=%s, trace_id=%s\n",
			err, in.ExternalID, in.TraceID)
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	fmt.Printf("[Recharge]  充值订单已创建: order_no=%s, user_id=%d, amount=%s, channel=%s, trace_id=%s\n",
		orderNo, user.ID, amtDec.String(), channel, in.TraceID)

	// 调用支付网关下单。网关未配置时仅创建本地订单（开发联调环境）
	payURL, err := s.createGatewayOrder(orderNo, amtDec, in.TraceID)
	if err != nil {
		// 订单保留 pending，超时后由关单任务置为 expired
		fmt.Printf("[Recharge]  网关下单失败: order_no=%s, error=%v, trace_id=%s\n",
			orderNo, err, in.TraceID)
		return nil, err
	}

	return &CreateRechargeOutput{OrderNo: orderNo, PayURL: payURL}, nil
}

// createGatewayOrder 调用支付网关创建订单，返回收银台地址
func (s *rechargeService) createGatewayOrder(orderNo string, amount decimal.Decimal, traceID string) (string, error) {
	cfg := config.GetCurrent()
	if cfg == nil || strings.TrimSpace(cfg.Gateway.BaseURL) == "" {
		fmt.Printf("[Recharge]  支付网关未配置，跳过网关下单: order_no=%s, trace_id=%s\n",
			orderNo, traceID)
		return "", nil
	}

	body, err := common.JsonMarshal(map[string]any{
		"merchant_no": cfg.Gateway.MerchantNo,
		"order_no":    orderNo,
		"amount":      amount.String(),
		"notify_url":  cfg.Gateway.NotifyURL,
	})
	if err != nil {
		return "", err
	}

	timestamp := fmt.Sprintf("%d", time.Now().UnixMilli())
	nonce := uuid.NewString()
	sign := chelper.SignPayload(cfg.Gateway.MerchantNo, timestamp, nonce, string(body), cfg.Gateway.Secret)
	headers := map[string]string{
		"Content-Type":  "application/json",
		"X-Merchant-No": cfg.Gateway.MerchantNo,
		"X-Timestamp":   timestamp,
		"X-Nonce":       nonce,
		"X-Sign":        sign,
	}

	uri := chelper.BuildFullURL(cfg.Gateway.BaseURL, cfg.Gateway.CreateOrderPath)
	respBody, statusCode, err := chelper.HttpDoTimeoutForPayGateway(body, "POST", uri, headers, gatewayTimeout)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	if statusCode != 200 {
		return "", fmt.Errorf("%w: status=%d", ErrGatewayUnavailable, statusCode)
	}

	var resp gatewayCreateResp
	if err := common.JsonUnmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("%w: bad response body", ErrGatewayUnavailable)
	}
	if resp.Code != 0 {
		return "", fmt.Errorf("gateway rejected order: code=%d, message=%s", resp.Code, resp.Message)
	}
	return resp.Data.PayURL, nil
}

// QueryRechargeOrder 查询充值订单，校验归属
func (s *rechargeService) QueryRechargeOrder(ctx context.Context, externalID, orderNo string) (*model.RechargeOrder, error) {
	order, err := model.GetRechargeOrderByNo(ctx, s.db, orderNo)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	user, err := model.GetUserByExternalID(ctx, s.db, externalID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	if order.UserID != user.ID {
		return nil, ErrOrderNotFound
	}
	return order, nil
}
