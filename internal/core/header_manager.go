package core

import (
	"fmt"
	"net/http"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
	"github.com/RecoveryAshes/kinocrawl/internal/utils"
)

// headerLayer 一层请求头来源
type headerLayer struct {
	name    string
	headers http.Header
}

// HeaderManager 合并页面驱动附加的请求头
// 优先级: 默认 < 配置文件 browser.headers < 命令行 -H
type HeaderManager struct {
	layers    []headerLayer
	validator *utils.HeaderValidator
	redactor  *utils.HeaderRedactor
}

// NewHeaderManager configHeaders 来自配置文件,cliHeaders 为 -H 参数
func NewHeaderManager(configHeaders map[string]string, cliHeaders []string) (*HeaderManager, error) {
	cli, err := models.ParseHeaderArgs(cliHeaders)
	if err != nil {
		return nil, err
	}
	config := make(http.Header, len(configHeaders))
	for name, value := range configHeaders {
		config.Set(name, value)
	}

	return &HeaderManager{
		layers: []headerLayer{
			{name: "默认", headers: defaultHeaders()},
			{name: "配置文件", headers: config},
			{name: "命令行", headers: cli},
		},
		validator: utils.NewHeaderValidator(),
		redactor:  utils.NewHeaderRedactor(),
	}, nil
}

// defaultHeaders 站点只有韩语内容
func defaultHeaders() http.Header {
	return http.Header{
		"Accept-Language": []string{"ko-KR,ko;q=0.9,en-US;q=0.8"},
	}
}

// Validate 逐层验证,返回第一个错误
func (hm *HeaderManager) Validate() error {
	for _, l := range hm.layers {
		if err := hm.validator.Validate(l.headers); err != nil {
			return fmt.Errorf("%s请求头: %w", l.name, err)
		}
	}
	return nil
}

// GetMergedHeaders 按优先级合并,后一层整体覆盖同名头部
func (hm *HeaderManager) GetMergedHeaders() http.Header {
	merged := make(http.Header)
	for _, l := range hm.layers {
		for name, values := range l.headers {
			merged[name] = values
		}
	}
	return merged
}

// GetSafeHeaders 脱敏后的合并结果,用于日志与 validate 输出
func (hm *HeaderManager) GetSafeHeaders() map[string]string {
	return hm.redactor.Redact(hm.GetMergedHeaders())
}

// GetHeaders 验证并返回合并后的请求头
func (hm *HeaderManager) GetHeaders() (http.Header, error) {
	if err := hm.Validate(); err != nil {
		utils.Error(err, "请求头验证失败")
		return nil, err
	}
	merged := hm.GetMergedHeaders()
	utils.Debugf("附加请求头: %s", hm.redactor.RedactToString(merged))
	return merged, nil
}
