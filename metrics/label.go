package metrics

// 通用标签
const (
	LabelOutcome = "outcome"
	LabelReason  = "reason"
	LabelBackend = "backend"
)

// 通用结果
const (
	OutcomeSuccess = "success"
	OutcomeError   = "error"
)

// Label 指标标签，用于为指标添加维度信息
//
// 避免高基数的值（如分区 ID、用户 ID）作为标签。
type Label struct {
	Key   string
	Value string
}

// L 便捷构造函数，创建一个 Label 实例
//
//	counter.Inc(ctx, metrics.L("outcome", "success"))
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
