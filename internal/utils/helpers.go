package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/RecoveryAshes/kinocrawl/internal/models"
)

// ReadIDsFromFile 从文件中读取作品ID列表
// 空行与 # 开头的行被忽略,重复ID只保留第一次出现
func ReadIDsFromFile(path string) ([]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开ID文件失败: %w", err)
	}
	defer file.Close()

	var ids []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if _, err := models.ParseExternalID(line); err != nil {
			Warnf("跳过无效ID (行 %d): %s", lineNum, line)
			continue
		}
		if seen[line] {
			continue
		}
		seen[line] = true
		ids = append(ids, line)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("读取ID文件失败: %w", err)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("ID文件中没有有效的作品ID")
	}

	Infof("从文件加载了 %d 个作品ID", len(ids))
	return ids, nil
}

// SplitIDs 解析逗号分隔的作品ID
func SplitIDs(raw string) ([]string, error) {
	var ids []string
	for _, part := range strings.Split(raw, ",") {
		id := strings.TrimSpace(part)
		if id == "" {
			continue
		}
		if _, err := models.ParseExternalID(id); err != nil {
			return nil, fmt.Errorf("无效的作品ID: %s", id)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
