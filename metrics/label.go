package metrics

// Label 指标标签
// 为指标添加维度信息，实现细粒度的分组和筛选
//
// 标签命名建议：
//   - 使用小写字母和下划线：service_name 而不是 serviceName
//   - 控制标签数量（建议 < 10 个）
//   - 避免高基数标签，如请求 ID
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数，创建一个 Label 实例
//
//	counter.Inc(ctx, metrics.L("service", "ledger"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}

const (
	// 常见的标签
	LabelService = "service"
	LabelOutcome = "outcome"

	// 常见的结果
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)
