package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/trainguard/trainguard/config"
	"github.com/trainguard/trainguard/kube"
	"github.com/trainguard/trainguard/license"
)

// doctorCheck is one environment probe result.
type doctorCheck struct {
	Name   string `json:"name"`
	OK     bool   `json:"ok"`
	Detail string `json:"detail,omitempty"`
}

// doctorCmd probes the environment the apply path depends on: kubectl, the
// kube context, the kill switch and the license. Read-only.
var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the environment the apply path depends on",
	Run: func(cmd *cobra.Command, args []string) {
		env := config.Default()
		var checks []doctorCheck

		client := kube.NewKubectl(env.KubectlBin)
		res := client.RunQuery(cmd.Context(), "version", "--client", "--output=json")
		checks = append(checks, doctorCheck{
			Name: "kubectl", OK: res.Err != kube.ErrNotFound,
			Detail: kubectlDetail(res),
		})

		if res.Err != kube.ErrNotFound {
			context, err := client.CurrentContext(cmd.Context())
			check := doctorCheck{Name: "kube_context", OK: err == nil, Detail: context}
			if err != nil {
				check.Detail = err.Error()
			}
			checks = append(checks, check)
		}

		ks := env.EvaluateKillSwitch()
		checks = append(checks, doctorCheck{
			Name: "kill_switch", OK: !ks.Active, Detail: ks.Signal,
		})

		if env.LicensePath == "" {
			checks = append(checks, doctorCheck{
				Name: "license", OK: false, Detail: config.EnvLicensePath + " not set",
			})
		} else {
			opts := licenseOptionsFromEnv(env)
			opts.CurrentContext = func() (string, error) { return client.CurrentContext(cmd.Context()) }
			verdict := license.VerifyFile(env.LicensePath, opts)
			checks = append(checks, doctorCheck{
				Name: "license", OK: verdict.LicenseOK, Detail: verdict.Reason,
			})
		}

		ok := true
		for _, c := range checks {
			if !c.OK {
				ok = false
			}
		}
		printJSON(map[string]any{"ok": ok, "checks": checks})
		if !ok {
			os.Exit(blockedExitCode)
		}
	},
}

func kubectlDetail(res kube.Result) string {
	if res.Err == kube.ErrNotFound {
		return res.Stderr
	}
	return ""
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
