package metrics

// Label 指标标签
//
// 标签值应当低基数：频道名、用户 ID、请求 ID 之类不要作为标签。
type Label struct {
	Key   string
	Value string
}

// L 创建一个 Label
func L(key, value string) Label {
	return Label{Key: key, Value: value}
}
