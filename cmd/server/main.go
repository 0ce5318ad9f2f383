// Command facenet-api serves FaceNet face embeddings over HTTP.
package main

func main() {
	Execute()
}
