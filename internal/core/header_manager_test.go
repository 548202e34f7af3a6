package core

import (
	"strings"
	"testing"
)

func TestHeaderManager_MergePriority(t *testing.T) {
	config := map[string]string{
		"Accept-Language": "en-US",
		"Referer":         "https://m.kinolights.com/",
	}
	hm, err := NewHeaderManager(config, []string{"Referer: https://example.com/"})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}

	merged, err := hm.GetHeaders()
	if err != nil {
		t.Fatalf("获取头部失败: %v", err)
	}
	if got := merged.Get("Accept-Language"); got != "en-US" {
		t.Errorf("配置应覆盖默认值, 得到 %q", got)
	}
	if got := merged.Get("Referer"); got != "https://example.com/" {
		t.Errorf("命令行应覆盖配置, 得到 %q", got)
	}
}

func TestHeaderManager_Defaults(t *testing.T) {
	hm, err := NewHeaderManager(nil, nil)
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	merged, err := hm.GetHeaders()
	if err != nil {
		t.Fatalf("获取头部失败: %v", err)
	}
	if !strings.HasPrefix(merged.Get("Accept-Language"), "ko-KR") {
		t.Errorf("默认语言错误: %q", merged.Get("Accept-Language"))
	}
}

func TestHeaderManager_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		config  map[string]string
		cli     []string
		wantNew bool // 构造阶段即失败
	}{
		{"命令行缺少冒号", nil, []string{"Referer"}, true},
		{"命令行名称为空", nil, []string{": value"}, true},
		{"配置禁止头部", map[string]string{"Host": "evil"}, nil, false},
		{"命令行非法值", nil, []string{"X-Test: 한국어"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hm, err := NewHeaderManager(tt.config, tt.cli)
			if tt.wantNew {
				if err == nil {
					t.Fatal("期望构造失败")
				}
				return
			}
			if err != nil {
				t.Fatalf("构造不应失败: %v", err)
			}
			if _, err := hm.GetHeaders(); err == nil {
				t.Error("期望验证失败")
			}
		})
	}
}

func TestHeaderManager_SafeHeaders(t *testing.T) {
	hm, err := NewHeaderManager(nil, []string{"Authorization: Bearer abc.def"})
	if err != nil {
		t.Fatalf("创建失败: %v", err)
	}
	if got := hm.GetSafeHeaders()["Authorization"]; got != "Bearer ***" {
		t.Errorf("未脱敏: %q", got)
	}
}
