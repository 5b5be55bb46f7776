package internal

import "golang.org/x/crypto/bcrypt"

// bcryptCost 房間密碼是低價值短期憑證，用預設成本即可
const bcryptCost = bcrypt.DefaultCost

// HashPassword 產生房間密碼的 bcrypt 雜湊。空密碼回傳 nil（不設密碼）。
func HashPassword(password string) ([]byte, error) {
	if password == "" {
		return nil, nil
	}
	return bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
}

// passwordMatches 驗證密碼與雜湊是否相符
func passwordMatches(hash []byte, password string) bool {
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}
