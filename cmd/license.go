package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/trainguard/trainguard/config"
	"github.com/trainguard/trainguard/kube"
	"github.com/trainguard/trainguard/license"
)

var (
	licensePath      string // Credential file; defaults to TRAINGUARD_LICENSE_PATH
	publicKeysPath   string // Direct kid->key keyring file
	rootKeysPath     string // Pinned root keys for the trust chain
	issuerKeysetPath string // Signed issuer keyset file
	skipBinding      bool   // Skip the kube-context binding check
)

// licenseCmd groups credential operations.
var licenseCmd = &cobra.Command{
	Use:   "license",
	Short: "Verify capability credentials offline",
}

// licenseVerifyCmd verifies a credential and prints the verdict. Exit code
// 2 means the credential was checked and rejected.
var licenseVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify a credential and print the license_verify.v0 verdict",
	Run: func(cmd *cobra.Command, args []string) {
		env := config.Default()
		path := licensePath
		if path == "" {
			path = env.LicensePath
		}
		if path == "" {
			logrus.Fatalf("no credential: set --license or %s", config.EnvLicensePath)
		}

		opts := license.Options{}
		keysPath := publicKeysPath
		if keysPath == "" {
			keysPath = env.PublicKeysPath
		}
		if keysPath != "" {
			ring, err := license.LoadKeyring(keysPath)
			if err != nil {
				logrus.Fatalf("unable to load public keys: %v", err)
			}
			opts.Keyring = ring
		}
		if rootKeysPath != "" {
			roots, err := license.LoadKeyring(rootKeysPath)
			if err != nil {
				logrus.Fatalf("unable to load root public keys: %v", err)
			}
			opts.RootKeys = roots
			opts.IssuerKeysetPath = issuerKeysetPath
		}
		if !skipBinding {
			client := kube.NewKubectl(env.KubectlBin)
			opts.CurrentContext = func() (string, error) { return client.CurrentContext(cmd.Context()) }
		}

		verdict := license.VerifyFile(path, opts)
		printJSON(verdict)
		if !verdict.LicenseOK {
			os.Exit(blockedExitCode)
		}
	},
}

func init() {
	licenseVerifyCmd.Flags().StringVar(&licensePath, "license", "", "Credential file (JSON)")
	licenseVerifyCmd.Flags().StringVar(&publicKeysPath, "public-keys", "", "Keyring file mapping kid to base64 public key")
	licenseVerifyCmd.Flags().StringVar(&rootKeysPath, "root-public-keys", "", "Pinned root keys for trust-chain verification")
	licenseVerifyCmd.Flags().StringVar(&issuerKeysetPath, "issuer-keyset", "", "Signed issuer keyset (issuer_keyset.v1)")
	licenseVerifyCmd.Flags().BoolVar(&skipBinding, "skip-binding", false, "Skip the kube-context binding check")

	licenseCmd.AddCommand(licenseVerifyCmd)
	rootCmd.AddCommand(licenseCmd)
}
