package main

func main() {
	if err := rootCmd.Execute(); err != nil {
		fatalf("cokedb: %v", err)
	}
}
