package cel

import (
	"net"
	"path/filepath"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/ext"

	"github.com/netcore-rdp/rdportal/internal/domain/policy"
)

// NewTargetEnvironment creates the CEL environment target rules compile in.
//   - Variables: target, principal, display_name, uses_gateway
//   - Functions: glob, ip_in_cidr, is_private_ip
func NewTargetEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),
		ext.Sets(),

		cel.Variable("target", cel.StringType),
		cel.Variable("principal", cel.StringType),
		cel.Variable("display_name", cel.StringType),
		cel.Variable("uses_gateway", cel.BoolType),

		// glob(pattern, value), e.g. glob("*.corp.lan", target)
		cel.Function("glob",
			cel.Overload("glob_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(pattern, value ref.Val) ref.Val {
					matched, _ := filepath.Match(pattern.Value().(string), value.Value().(string))
					return types.Bool(matched)
				}),
			),
		),

		// ip_in_cidr(target, "10.0.0.0/8"); false for hostnames.
		cel.Function("ip_in_cidr",
			cel.Overload("ip_in_cidr_string_string",
				[]*cel.Type{cel.StringType, cel.StringType},
				cel.BoolType,
				cel.BinaryBinding(func(ipVal, cidrVal ref.Val) ref.Val {
					ip := net.ParseIP(hostOnly(ipVal.Value().(string)))
					if ip == nil {
						return types.Bool(false)
					}
					_, network, err := net.ParseCIDR(cidrVal.Value().(string))
					if err != nil {
						return types.Bool(false)
					}
					return types.Bool(network.Contains(ip))
				}),
			),
		),

		// is_private_ip(target): loopback, RFC 1918, link-local or ULA.
		cel.Function("is_private_ip",
			cel.Overload("is_private_ip_string",
				[]*cel.Type{cel.StringType},
				cel.BoolType,
				cel.UnaryBinding(func(ipVal ref.Val) ref.Val {
					ip := net.ParseIP(hostOnly(ipVal.Value().(string)))
					if ip == nil {
						return types.Bool(false)
					}
					return types.Bool(ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast())
				}),
			),
		),
	)
}

// hostOnly strips an optional port.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.TrimSuffix(strings.TrimPrefix(addr, "["), "]")
}

// BuildActivation creates the CEL activation for evalCtx.
func BuildActivation(evalCtx policy.EvaluationContext) map[string]any {
	return map[string]any{
		"target":       evalCtx.Target,
		"principal":    evalCtx.Principal,
		"display_name": evalCtx.DisplayName,
		"uses_gateway": evalCtx.UsesGateway,
	}
}
