// Command keygen provisions the key material every role of a benchmark
// run shares: a Kreyvium key, a fresh TFHE parameter set, and a TFHE
// secret key set, written under a storage root's storage_keys/
// directory via pkg/keystore. It also signs the generated blobs with an
// ML-DSA-87 keypair (pkg/keysign) so a later `inspect` run can detect
// key material edited or truncated after generation.
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/shadowmesh/hebench/pkg/keysign"
	"github.com/shadowmesh/hebench/pkg/keystore"
	"github.com/shadowmesh/hebench/pkg/kreyvium"
	"github.com/shadowmesh/hebench/pkg/tfhe"
)

func main() {
	root := &cobra.Command{
		Use:   "keygen",
		Short: "Generate and inspect key material for an HE/HHE benchmark run",
	}

	var storageRoot string
	var paramSetID string

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a Kreyvium key, TFHE params, and a TFHE secret key set",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(storageRoot, paramSetID)
		},
	}
	generateCmd.Flags().StringVar(&storageRoot, "storage-root", "./storage", "Benchmark storage root")
	generateCmd.Flags().StringVar(&paramSetID, "param-set-id", "default", "Identifier bound to the generated TFHE parameter set")

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Verify the ML-DSA-87 signature over previously generated key material",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(storageRoot)
		},
	}
	inspectCmd.Flags().StringVar(&storageRoot, "storage-root", "./storage", "Benchmark storage root")

	root.AddCommand(generateCmd, inspectCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runGenerate(storageRoot, paramSetID string) error {
	store := keystore.New(storageRoot)
	engine := tfhe.NewEngine()

	kreyviumKey, err := kreyvium.GenerateKey()
	if err != nil {
		return fmt.Errorf("generating kreyvium key: %w", err)
	}
	if err := store.SaveKreyviumKey(kreyviumKey); err != nil {
		return fmt.Errorf("saving kreyvium key: %w", err)
	}

	params := tfhe.NewParamSet(paramSetID)
	if err := store.SaveTFHEParams(params); err != nil {
		return fmt.Errorf("saving tfhe params: %w", err)
	}

	sk, err := engine.GenerateSecretKey(params)
	if err != nil {
		return fmt.Errorf("generating tfhe secret key: %w", err)
	}
	if err := store.SaveTFHESecret(sk); err != nil {
		return fmt.Errorf("saving tfhe secret key: %w", err)
	}

	manifest, err := store.Manifest()
	if err != nil {
		return err
	}
	kp, err := keysign.GenerateKeypair()
	if err != nil {
		return fmt.Errorf("generating manifest signing keypair: %w", err)
	}
	sig, err := keysign.Sign(kp, manifest)
	if err != nil {
		return fmt.Errorf("signing key manifest: %w", err)
	}
	if err := store.SaveManifestSignature(kp.PublicKey, sig); err != nil {
		return fmt.Errorf("saving manifest signature: %w", err)
	}

	md := keystore.Metadata{
		ParamSetID:      paramSetID,
		GeneratedAt:     time.Now().Format(time.RFC3339),
		KreyviumKeyBits: kreyvium.KeySize * 8,
		CiphertextBytes: tfhe.CiphertextSize,
	}
	if err := store.SaveMetadata(md); err != nil {
		return fmt.Errorf("saving key metadata: %w", err)
	}

	fmt.Printf("generated key material under %s/storage_keys (param set %q)\n", storageRoot, paramSetID)
	return nil
}

func runInspect(storageRoot string) error {
	store := keystore.New(storageRoot)

	pub, sig, err := store.LoadManifestSignature()
	if err != nil {
		return fmt.Errorf("loading manifest signature: %w", err)
	}
	manifest, err := store.Manifest()
	if err != nil {
		return err
	}

	if !keysign.Verify(pub, manifest, sig) {
		return fmt.Errorf("key material under %s/storage_keys failed ML-DSA-87 verification", storageRoot)
	}

	fmt.Printf("key material under %s/storage_keys verified OK\n", storageRoot)
	if md, err := store.LoadMetadata(); err == nil {
		fmt.Printf("  param set %q, generated %s, kreyvium key %d bits, tfhe ciphertext %d bytes\n",
			md.ParamSetID, md.GeneratedAt, md.KreyviumKeyBits, md.CiphertextBytes)
	}
	return nil
}
