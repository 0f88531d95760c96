package domain

// ErrorKind 是流水线各阶段的降级原因。
//
// 约束：所有 kind 都在产生它的阶段内被消化为“缺省值/回退值”，
// 不会让单个归档的流水线中断；它只作为结果里的解释字段存在。
type ErrorKind string

const (
	ErrArchiveUnreadable         ErrorKind = "archive_unreadable"
	ErrManifestMalformed         ErrorKind = "manifest_malformed"
	ErrRegistryUnreachable       ErrorKind = "registry_unreachable"
	ErrRegistryResponseMalformed ErrorKind = "registry_response_malformed"
	ErrNoConfidentMatch          ErrorKind = "no_confident_match"
	ErrNoCompatibleVersion       ErrorKind = "no_compatible_version"
	ErrVersionUnparseable        ErrorKind = "version_unparseable"
	ErrUnknownTarget             ErrorKind = "unknown_target"
	ErrUnknownLoader             ErrorKind = "unknown_loader"
	ErrInternal                  ErrorKind = "internal"
	ErrCanceled                  ErrorKind = "canceled"
)

// IsRegistryFailure 表示该 kind 来自网络/响应层面的失败（结果不应写入解析缓存）。
func (k ErrorKind) IsRegistryFailure() bool {
	return k == ErrRegistryUnreachable || k == ErrRegistryResponseMalformed
}
