package helper

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// 支付网关超时配置常量
const (
	PayGatewayTimeout = 8 * time.Second // 支付网关统一超时时间
	FastTimeout       = 3 * time.Second // 快速接口超时时间
)

// 并发统计指标（/readyz 透出）
var (
	activeConnections int64 // 当前活跃连接数
	totalRequests     int64 // 总请求数
)

// 全局优化的HTTP客户端，支持连接复用
var (
	globalClient = &fasthttp.Client{
		ReadTimeout:                   5 * time.Second,
		WriteTimeout:                  5 * time.Second,
		MaxIdleConnDuration:           90 * time.Second, // 连接空闲时间
		MaxConnsPerHost:               50,               // 每个主机最大连接数
		MaxConnWaitTimeout:            3 * time.Second,  // 等待连接超时
		DisableHeaderNamesNormalizing: true,             // 禁用header名称标准化以提升性能
	}

	// 专用于支付网关的客户端 - 高并发优化
	payGatewayClient = &fasthttp.Client{
		ReadTimeout:                   PayGatewayTimeout,
		WriteTimeout:                  PayGatewayTimeout,
		MaxIdleConnDuration:           60 * time.Second,
		MaxConnsPerHost:               100,
		MaxConnWaitTimeout:            1 * time.Second,
		DisableHeaderNamesNormalizing: true,
	}
)

func doWithClient(client *fasthttp.Client, requestBody []byte, method string, requestURI string, headers map[string]string, timeout time.Duration) ([]byte, int, error) {

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()

	defer func() {
		fasthttp.ReleaseResponse(resp)
		fasthttp.ReleaseRequest(req)
	}()

	req.SetRequestURI(requestURI)
	req.Header.SetMethod(method)

	if method == fasthttp.MethodPost {
		req.SetBody(requestBody)
	}

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	err := client.DoTimeout(req, resp, timeout)

	var respBytes []byte
	statusCode := 0
	if err == nil {
		respBytes = append(respBytes, resp.Body()...)
		statusCode = resp.StatusCode()
	}

	return respBytes, statusCode, errors.WithStack(err)
}

// HttpDoTimeout 通用出站请求，复用全局连接池
func HttpDoTimeout(requestBody []byte, method string, requestURI string, headers map[string]string, timeout time.Duration) ([]byte, int, error) {
	return doWithClient(globalClient, requestBody, method, requestURI, headers, timeout)
}

// HttpDoTimeoutForPayGateway 支付网关专用出站请求，独立连接池并记录并发水位
func HttpDoTimeoutForPayGateway(requestBody []byte, method string, requestURI string, headers map[string]string, timeout time.Duration) ([]byte, int, error) {
	atomic.AddInt64(&activeConnections, 1)
	atomic.AddInt64(&totalRequests, 1)
	defer atomic.AddInt64(&activeConnections, -1)

	return doWithClient(payGatewayClient, requestBody, method, requestURI, headers, timeout)
}

// GetConcurrencyStats 获取支付出站并发统计信息
func GetConcurrencyStats() (activeConns int64, totalReqs int64) {
	return atomic.LoadInt64(&activeConnections), atomic.LoadInt64(&totalRequests)
}
